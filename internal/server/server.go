package server

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/amarbel-llc/go-lib-mcp/jsonrpc"
	"github.com/amarbel-llc/codebuddy/internal/config"
	"github.com/amarbel-llc/codebuddy/internal/config/filetype"
	"github.com/amarbel-llc/codebuddy/internal/control"
	"github.com/amarbel-llc/codebuddy/internal/formatter"
	"github.com/amarbel-llc/codebuddy/internal/lsp"
	"github.com/amarbel-llc/codebuddy/internal/subprocess"
)

type Server struct {
	cfg         *config.Config
	filetypes   []*filetype.Config
	pool        *subprocess.Pool
	router      *Router
	fmtRouter   *formatter.Router
	executor    subprocess.Executor
	clientConn  *jsonrpc.Conn
	controlSrv  *control.Server
	initParams  *lsp.InitializeParams
	projectRoot string
	initialized bool
	mu          sync.RWMutex
	done        chan struct{}
}

func New(cfg *config.Config) (*Server, error) {
	filetypes, err := filetype.LoadMerged()
	if err != nil {
		return nil, fmt.Errorf("loading filetypes: %w", err)
	}

	router, err := NewRouter(filetypes)
	if err != nil {
		return nil, fmt.Errorf("creating router: %w", err)
	}

	s := &Server{
		cfg:       cfg,
		filetypes: filetypes,
		router:    router,
		done:      make(chan struct{}),
	}

	s.executor = subprocess.NewNixExecutor()
	s.pool = subprocess.NewPool(s.executor, func(lspName string) jsonrpc.Handler {
		return serverNotificationHandler(s, lspName)
	})
	s.registerLSPs(cfg)

	if fmtCfg, err := config.LoadMergedFormatters(); err == nil {
		fmtMap := make(map[string]*config.Formatter)
		for i := range fmtCfg.Formatters {
			f := &fmtCfg.Formatters[i]
			if !f.Disabled {
				fmtMap[f.Name] = f
			}
		}
		if fmtRouter, err := formatter.NewRouter(filetypes, fmtMap); err == nil {
			s.fmtRouter = fmtRouter
		}
	}

	return s, nil
}

func (s *Server) registerLSPs(cfg *config.Config) {
	for _, l := range cfg.LSPs {
		var capOverrides *subprocess.CapabilityOverride
		if l.Capabilities != nil {
			capOverrides = &subprocess.CapabilityOverride{
				Disable: l.Capabilities.Disable,
				Enable:  l.Capabilities.Enable,
			}
		}
		s.pool.Register(l.Name, l.Flake, l.Binary, l.Args, l.Env, l.InitOptions, l.Settings,
			l.SettingsWireKey(), capOverrides, l.ShouldWaitForReady(), l.ReadyTimeoutDuration(), l.ActivityTimeoutDuration())
	}
}

func (s *Server) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	handler := NewHandler(s)
	s.clientConn = jsonrpc.NewConn(os.Stdin, os.Stdout, handler.Handle)

	controlSrv, err := control.NewServer(s.cfg.SocketPath(), s.pool, s.cfg, s.filetypes, s.executor)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: could not start control socket: %v\n", err)
	} else {
		s.controlSrv = controlSrv
		go s.controlSrv.Run(ctx)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.clientConn.Run(ctx)
	}()

	select {
	case err := <-errCh:
		s.shutdown()
		return err
	case <-ctx.Done():
		s.shutdown()
		return ctx.Err()
	case <-s.done:
		return nil
	}
}

func (s *Server) shutdown() {
	s.pool.StopAll()

	if s.controlSrv != nil {
		s.controlSrv.Close()
	}
}

func (s *Server) Close() {
	close(s.done)
}

func (s *Server) Pool() *subprocess.Pool {
	return s.pool
}

func (s *Server) Router() *Router {
	return s.router
}

func (s *Server) reloadPool(cfg *config.Config) error {
	s.cfg = cfg
	s.registerLSPs(cfg)
	return nil
}
