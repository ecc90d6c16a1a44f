package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/rs/zerolog"

	"github.com/amarbel-llc/codebuddy/internal/analysis"
	"github.com/amarbel-llc/codebuddy/internal/config"
	"github.com/amarbel-llc/codebuddy/internal/config/filetype"
	"github.com/amarbel-llc/codebuddy/internal/formatter"
	"github.com/amarbel-llc/codebuddy/internal/lsp"
	"github.com/amarbel-llc/codebuddy/internal/plugin"
	"github.com/amarbel-llc/codebuddy/internal/server"
	"github.com/amarbel-llc/codebuddy/internal/subprocess"
	"github.com/amarbel-llc/go-lib-mcp/jsonrpc"
	"github.com/amarbel-llc/go-lib-mcp/transport"
)

type Server struct {
	cfg       *config.Config
	transport transport.Transport
	handler   *Handler
	pool      *subprocess.Pool
	router    *server.Router
	bridge    *Bridge
	docMgr    *DocumentManager
	diagStore *DiagnosticsStore
	plugins   *plugin.Registry
	tools     *ToolRegistry
	resources *ResourceRegistry
	prompts   *PromptRegistry
	log       zerolog.Logger
	done      chan struct{}
	wg        sync.WaitGroup
}

func New(cfg *config.Config, t transport.Transport) (*Server, error) {
	router, err := server.NewRouterFromConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("creating router: %w", err)
	}

	s := &Server{
		cfg:       cfg,
		transport: t,
		router:    router,
		done:      make(chan struct{}),
		log:       zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, NoColor: true}).With().Timestamp().Str("component", "mcp").Logger(),
	}

	executor := subprocess.NewNixExecutor()
	s.pool = subprocess.NewPool(executor, func(lspName string) jsonrpc.Handler {
		return s.lspNotificationHandler(lspName)
	})
	s.pool.SetLogger(s.log)

	for _, l := range cfg.LSPs {
		// Convert config.CapabilityOverride to subprocess.CapabilityOverride
		var capOverrides *subprocess.CapabilityOverride
		if l.Capabilities != nil {
			capOverrides = &subprocess.CapabilityOverride{
				Disable: l.Capabilities.Disable,
				Enable:  l.Capabilities.Enable,
			}
		}
		s.pool.Register(l.Name, l.Flake, l.Binary, l.Args, l.Env, l.InitOptions, l.Settings, l.SettingsWireKey(), capOverrides, l.ShouldWaitForReady(), l.ReadyTimeoutDuration(), l.ActivityTimeoutDuration())
	}

	var regErrs []error
	s.plugins, regErrs = plugin.BuildRegistry(cfg.LSPs)
	for _, err := range regErrs {
		s.log.Warn().Err(err).Msg("could not register plugin adapter")
	}

	var fmtRouter *formatter.Router
	fmtCfg, err := config.LoadMergedFormatters()
	if err != nil {
		s.log.Warn().Err(err).Msg("could not load formatter config")
	} else if filetypes, ftErr := filetype.LoadMerged(); ftErr != nil {
		s.log.Warn().Err(ftErr).Msg("could not load filetype configs")
	} else {
		fmtMap := make(map[string]*config.Formatter)
		for i := range fmtCfg.Formatters {
			f := &fmtCfg.Formatters[i]
			if !f.Disabled {
				fmtMap[f.Name] = f
			}
		}
		fmtRouter, err = formatter.NewRouter(filetypes, fmtMap)
		if err != nil {
			s.log.Warn().Err(err).Msg("could not create formatter router")
			fmtRouter = nil
		}
	}

	s.bridge = NewBridge(s.pool, s.router, fmtRouter, executor)
	s.bridge.SetLogger(s.log)
	s.docMgr = NewDocumentManager(s.pool, s.router, s.bridge)
	s.bridge.SetDocumentManager(s.docMgr)
	s.diagStore = NewDiagnosticsStore()
	s.tools = NewToolRegistry(s.bridge, s.plugins, analysis.NewOrchestrator(), s.log)
	s.resources = NewResourceRegistry(s.pool, s.bridge, cfg, s.diagStore)
	s.prompts = NewPromptRegistry()
	s.handler = NewHandler(s)
	return s, nil
}

func (s *Server) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			s.gracefulShutdown()
			return ctx.Err()
		case <-s.done:
			s.gracefulShutdown()
			return nil
		default:
		}

		msg, err := s.transport.Read()
		if err != nil {
			// EOF signals graceful shutdown from client
			if err == io.EOF {
				s.gracefulShutdown()
				return nil
			}
			s.gracefulShutdown()
			return fmt.Errorf("reading message: %w", err)
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleMessage(ctx, msg)
		}()
	}
}

func (s *Server) handleMessage(ctx context.Context, msg *jsonrpc.Message) {
	resp, err := s.handler.Handle(ctx, msg)
	if err != nil {
		if msg.IsRequest() {
			errResp, _ := jsonrpc.NewErrorResponse(*msg.ID, jsonrpc.InternalError, err.Error(), nil)
			s.transport.Write(errResp)
		}
		return
	}

	if resp != nil {
		s.transport.Write(resp)
	}
}

func (s *Server) gracefulShutdown() {
	// Wait for all in-flight requests to complete
	s.wg.Wait()
	s.docMgr.CloseAll()
	s.pool.StopAll()
	s.transport.Close()
}

func (s *Server) Close() {
	close(s.done)
}

func (s *Server) DocumentManager() *DocumentManager {
	return s.docMgr
}

func (s *Server) lspNotificationHandler(lspName string) jsonrpc.Handler {
	return func(ctx context.Context, msg *jsonrpc.Message) (*jsonrpc.Message, error) {
		// Intercept window/workDoneProgress/create requests
		if msg.IsRequest() && msg.Method == lsp.MethodWindowWorkDoneProgressCreate {
			if inst, ok := s.pool.Get(lspName); ok && inst.Progress != nil {
				var params lsp.WorkDoneProgressCreateParams
				if err := json.Unmarshal(msg.Params, &params); err == nil {
					inst.Progress.HandleCreate(params.Token)
				}
			}
			return jsonrpc.NewResponse(*msg.ID, nil)
		}

		// Intercept $/progress notifications — update tracker, log to stderr
		if msg.IsNotification() && msg.Method == lsp.MethodProgress {
			if inst, ok := s.pool.Get(lspName); ok && inst.Progress != nil {
				var params lsp.ProgressParams
				if err := json.Unmarshal(msg.Params, &params); err == nil {
					inst.Progress.HandleProgress(params.Token, params.Value)

					active := inst.Progress.ActiveProgress()
					for _, tok := range active {
						ev := s.log.Info().Str("lsp", lspName).Str("title", tok.Title)
						if tok.Pct != nil {
							ev = ev.Int("pct", *tok.Pct)
						}
						ev.Msg(tok.Message)
					}
				}
			}
			return nil, nil
		}

		if msg.Method == "textDocument/publishDiagnostics" && msg.Params != nil {
			var params lsp.PublishDiagnosticsParams
			if err := json.Unmarshal(msg.Params, &params); err != nil {
				return nil, nil
			}

			s.diagStore.Update(params)

			resourceURI := DiagnosticsResourceURI(params.URI)
			notification, err := jsonrpc.NewNotification("notifications/resources/updated", map[string]string{
				"uri": resourceURI,
			})
			if err == nil {
				s.transport.Write(notification)
			}
		}

		return nil, nil
	}
}
