package grammar

const goHighlights = `
(comment) @comment
(interpreted_string_literal) @string
(raw_string_literal) @string
(rune_literal) @string
(escape_sequence) @string.escape
(int_literal) @number
(float_literal) @number
(imaginary_literal) @number
[(true) (false) (nil)] @constant.builtin

(function_declaration name: (identifier) @function)
(method_declaration name: (field_identifier) @function.method)
(call_expression function: (identifier) @function)
(call_expression function: (selector_expression field: (field_identifier) @function.method))
(parameter_declaration name: (identifier) @parameter)
(type_identifier) @type
(field_identifier) @property
(package_identifier) @namespace
(label_name) @label
(identifier) @variable

["break" "case" "chan" "const" "continue" "default" "defer" "else" "fallthrough"
 "for" "func" "go" "goto" "if" "import" "interface" "map" "package" "range"
 "return" "select" "struct" "switch" "type" "var"] @keyword

["=" ":=" "+" "-" "*" "/" "%" "==" "!=" "<" "<=" ">" ">=" "&&" "||" "!" "&" "|" "<-"] @operator
["(" ")" "[" "]" "{" "}"] @punctuation.bracket
["," ";" "." ":"] @punctuation.delimiter
`

// javascriptShared holds the patterns valid in both the JavaScript and the
// TypeScript grammars. Parameters differ: TypeScript wraps them in
// required_parameter and optional_parameter nodes.
const javascriptShared = `
(comment) @comment
(string) @string
(template_string) @string
(escape_sequence) @string.escape
(regex) @string.special
(number) @number
[(true) (false) (null) (undefined)] @constant.builtin
[(this) (super)] @variable.builtin

(function_declaration name: (identifier) @function)
(method_definition name: (property_identifier) @function.method)
(call_expression function: (identifier) @function)
(call_expression function: (member_expression property: (property_identifier) @function.method))
`

const javascriptHighlights = javascriptShared + `
(formal_parameters (identifier) @parameter)
(property_identifier) @property
(identifier) @variable
`

const javascriptKeywords = `
["as" "async" "await" "break" "case" "catch" "class" "const" "continue" "debugger"
 "default" "delete" "do" "else" "export" "extends" "finally" "for" "from" "function"
 "if" "import" "in" "instanceof" "let" "new" "of" "return" "static" "switch"
 "throw" "try" "typeof" "var" "void" "while" "yield"] @keyword

["=" "+" "-" "*" "/" "%" "==" "===" "!=" "!==" "<" "<=" ">" ">=" "&&" "||" "!" "=>" "..."] @operator
["(" ")" "[" "]" "{" "}"] @punctuation.bracket
["," ";" "." ":"] @punctuation.delimiter
`

const typescriptHighlights = javascriptShared + `
(required_parameter pattern: (identifier) @parameter)
(optional_parameter pattern: (identifier) @parameter)
(property_identifier) @property
(identifier) @variable
(type_identifier) @type
(predefined_type) @type.builtin
(interface_declaration name: (type_identifier) @type)
` + javascriptKeywords + `
["abstract" "declare" "enum" "implements" "interface" "keyof" "namespace"
 "private" "protected" "public" "readonly" "type"] @keyword
`

const pythonHighlights = `
(comment) @comment
(string) @string
(escape_sequence) @string.escape
(integer) @number
(float) @number
[(true) (false) (none)] @constant.builtin

(function_definition name: (identifier) @function)
(class_definition name: (identifier) @type)
(call function: (identifier) @function)
(call function: (attribute attribute: (identifier) @function.method))
(parameters (identifier) @parameter)
(attribute attribute: (identifier) @property)
(decorator) @attribute
(identifier) @variable

["and" "as" "assert" "async" "await" "break" "class" "continue" "def" "del" "elif"
 "else" "except" "finally" "for" "from" "global" "if" "import" "in" "is" "lambda"
 "nonlocal" "not" "or" "pass" "raise" "return" "try" "while" "with" "yield"] @keyword

["(" ")" "[" "]" "{" "}"] @punctuation.bracket
["," "." ":"] @punctuation.delimiter
`

const rustHighlights = `
(line_comment) @comment
(block_comment) @comment
(string_literal) @string
(raw_string_literal) @string
(char_literal) @string
(escape_sequence) @string.escape
(integer_literal) @number
(float_literal) @number
(boolean_literal) @constant.builtin

(function_item name: (identifier) @function)
(call_expression function: (identifier) @function)
(call_expression function: (field_expression field: (field_identifier) @function.method))
(macro_invocation macro: (identifier) @function)
(parameter pattern: (identifier) @parameter)
(type_identifier) @type
(primitive_type) @type.builtin
(field_identifier) @property
(lifetime) @label
(attribute_item) @attribute
(mod_item name: (identifier) @module)
(identifier) @variable

["as" "async" "await" "break" "const" "continue" "else" "enum" "fn" "for" "if"
 "impl" "in" "let" "loop" "match" "mod" "move" "pub" "return" "static" "struct"
 "trait" "type" "unsafe" "use" "where" "while"] @keyword

["(" ")" "[" "]" "{" "}"] @punctuation.bracket
["," ";" "::" "."] @punctuation.delimiter
`

const yamlHighlights = `
(comment) @comment
(block_mapping_pair key: (flow_node) @property)
(flow_pair key: (flow_node) @property)
(double_quote_scalar) @string
(single_quote_scalar) @string
(block_scalar) @string
(escape_sequence) @string.escape
(integer_scalar) @number
(float_scalar) @number
(boolean_scalar) @constant.builtin
(null_scalar) @constant.builtin
(anchor_name) @label
(alias_name) @label
(tag) @type
`

const bashHighlights = `
(comment) @comment
(string) @string
(raw_string) @string
(heredoc_body) @string
(number) @number
(function_definition name: (word) @function)
(command_name) @function
(variable_name) @variable
(special_variable_name) @variable.builtin

["if" "then" "else" "elif" "fi" "case" "esac" "for" "while" "until" "do" "done"
 "in" "function" "export" "local" "declare" "readonly" "unset"] @keyword
`

const cssHighlights = `
(comment) @comment
(tag_name) @tag
(class_name) @type
(id_name) @constant
(property_name) @property
(feature_name) @property
(attribute_name) @attribute
(string_value) @string
(integer_value) @number
(float_value) @number
(unit) @type
(color_value) @constant
(plain_value) @variable
(function_name) @function
(at_keyword) @keyword
(important) @keyword
`

const htmlHighlights = `
(comment) @comment
(tag_name) @tag
(erroneous_end_tag_name) @tag
(attribute_name) @attribute
(attribute_value) @string
(doctype) @constant
["<" ">" "</" "/>"] @punctuation.bracket
"=" @operator
`
