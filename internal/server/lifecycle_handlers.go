package server

import (
	"encoding/json"
	"fmt"

	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"
)

func (s *Server) initialize(
	context *glsp.Context,
	params *protocol.InitializeParams,
) (any, error) {
	if params.InitializationOptions != nil {
		configJson, err := json.Marshal(params.InitializationOptions)
		if err != nil {
			return nil, err
		}
		// only fields present in the options overwrite the defaults.
		if err := json.Unmarshal(configJson, &s.config); err != nil {
			return nil, fmt.Errorf("invalid initialization options: %w", err)
		}
	}
	for ext, lang := range s.config.Extensions {
		if err := s.registry.Override(ext, lang); err != nil {
			log.Warningf("ignoring extension override %s: %v", ext, err)
		}
	}
	log.Infof("initialized with %d extension overrides", len(s.config.Extensions))

	syncKind := protocol.TextDocumentSyncKindIncremental
	capabilities := s.handler.CreateServerCapabilities()
	capabilities.TextDocumentSync = &protocol.TextDocumentSyncOptions{
		OpenClose: &protocol.True,
		Change:    &syncKind,
	}

	return protocol.InitializeResult{
		Capabilities: capabilities,
		ServerInfo: &protocol.InitializeResultServerInfo{
			Name:    Name,
			Version: &s.version,
		},
	}, nil
}

func (s *Server) initialized(
	context *glsp.Context,
	params *protocol.InitializedParams,
) error {
	log.Debugf("client initialized")
	return nil
}

func (s *Server) shutdown(context *glsp.Context) error {
	protocol.SetTraceValue(protocol.TraceValueOff)
	s.docs.closeAll()
	return nil
}

func (s *Server) setTrace(context *glsp.Context, params *protocol.SetTraceParams) error {
	protocol.SetTraceValue(params.Value)
	return nil
}
