// Package mcp exposes the lore store, schema registry, relatedness engine
// and context builder as MCP tools over a transport. Remote store clients
// speak the same tool surface.
package mcp

import (
	"context"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"loreweave/internal/lore"
	"loreweave/internal/relate"
	"loreweave/internal/schema"
	"loreweave/internal/store"
)

type Server struct {
	registry *schema.Registry
	db       store.Store
	engine   *relate.Engine
	builder  *lore.Builder
	log      *zap.Logger
	mcp      *sdk.Server
}

func NewServer(registry *schema.Registry, db store.Store, engine *relate.Engine, builder *lore.Builder, version string, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{
		registry: registry,
		db:       db,
		engine:   engine,
		builder:  builder,
		log:      log,
		mcp: sdk.NewServer(&sdk.Implementation{
			Name:    "loreweave",
			Version: version,
		}, nil),
	}
	s.registerTools()
	return s
}

func (s *Server) Run(ctx context.Context, transport sdk.Transport) error {
	return s.mcp.Run(ctx, transport)
}
