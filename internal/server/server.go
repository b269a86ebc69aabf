// Package server is the builtin analyzer: a language server that reports
// tree-sitter syntax errors and answers completion and hover from the tree.
package server

import (
	"github.com/tliron/commonlog"
	protocol "github.com/tliron/glsp/protocol_3_16"
	"github.com/tliron/glsp/server"

	"simplide/internal/grammar"
)

const Name = "simplide-analyzer"

var log = commonlog.GetLogger("simplide.server")

// Config arrives as initializationOptions.
type Config struct {
	// Extensions maps file extensions to language names, on top of the
	// built-in detection.
	Extensions     map[string]string `json:"extensions"`
	MaxCompletions int               `json:"max_completions"`
}

type Server struct {
	handler  *protocol.Handler
	registry *grammar.Registry
	docs     *documents
	config   Config
	version  string
}

func New(version string) *Server {
	ls := &Server{
		registry: grammar.NewRegistry(),
		docs:     newDocuments(),
		config:   Config{MaxCompletions: 50},
		version:  version,
	}
	ls.handler = &protocol.Handler{
		Initialize:             ls.initialize,
		Initialized:            ls.initialized,
		Shutdown:               ls.shutdown,
		SetTrace:               ls.setTrace,
		TextDocumentDidOpen:    ls.textDocumentDidOpen,
		TextDocumentDidChange:  ls.textDocumentDidChange,
		TextDocumentDidClose:   ls.textDocumentDidClose,
		TextDocumentCompletion: ls.textDocumentCompletion,
		TextDocumentHover:      ls.textDocumentHover,
	}
	return ls
}

// NewServer wraps the analyzer in a glsp server ready for RunStdio,
// RunTCP, RunWebSocket or ServeStream.
func NewServer(version string) *server.Server {
	return server.NewServer(New(version).handler, Name, false)
}
