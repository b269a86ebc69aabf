package main

import (
	"github.com/spf13/cobra"

	"simplide/internal/server"
)

var (
	analyzerTCP       string
	analyzerWebSocket string

	analyzerCmd = &cobra.Command{
		Use:   "analyzer",
		Short: "Serve the builtin syntax analyzer over stdio, TCP or WebSocket",
		Args:  cobra.NoArgs,
		RunE:  runAnalyzer,
	}
)

func init() {
	analyzerCmd.Flags().StringVar(&analyzerTCP, "tcp", "", "listen on this TCP address instead of stdio")
	analyzerCmd.Flags().StringVar(&analyzerWebSocket, "ws", "", "listen for WebSocket connections on this address")
	analyzerCmd.MarkFlagsMutuallyExclusive("tcp", "ws")
}

func runAnalyzer(cmd *cobra.Command, args []string) error {
	srv := server.NewServer(Version)
	switch {
	case analyzerTCP != "":
		log.Infof("analyzer listening on %s", analyzerTCP)
		return srv.RunTCP(analyzerTCP)
	case analyzerWebSocket != "":
		log.Infof("analyzer listening for websockets on %s", analyzerWebSocket)
		return srv.RunWebSocket(analyzerWebSocket)
	}
	return srv.RunStdio()
}
