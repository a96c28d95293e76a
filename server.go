package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ServerOption represents the options for the server.
type ServerOption func(*Server)

// Server implements a Model Context Protocol (MCP) server that enables communication
// between LLM applications and external data sources and tools. It manages the
// connection lifecycle, handles protocol messages, and provides access to MCP
// server capabilities.
type Server struct {
	info Info

	instructions string
	capabilities ServerCapabilities
	transport    ServerTransport

	promptServer   PromptServer
	resourceServer ResourceServer
	toolServer     ToolServer

	pingInterval         time.Duration
	pingTimeout          time.Duration
	pingTimeoutThreshold int
	sendTimeout          time.Duration

	logger *slog.Logger

	onClientConnected    func(string, Info)
	onClientDisconnected func(string)

	sessionsWaitGroup *sync.WaitGroup

	done chan struct{}
}

type serverSession struct {
	session Session
	logger  *slog.Logger

	serverCap    ServerCapabilities
	serverInfo   Info
	instructions string

	pingInterval         time.Duration
	pingTimeout          time.Duration
	pingTimeoutThreshold int
	sendTimeout          time.Duration

	promptServer   PromptServer
	resourceServer ResourceServer
	toolServer     ToolServer
}

var (
	defaultServerPingInterval         = 30 * time.Second
	defaultServerPingTimeout          = 30 * time.Second
	defaultServerPingTimeoutThreshold = 3
	defaultServerSendTimeout          = 30 * time.Second

	errInvalidJSON = errors.New("invalid json")
)

// NewServer creates a new Model Context Protocol (MCP) server with the specified configuration.
func NewServer(info Info, transport ServerTransport, options ...ServerOption) Server {
	s := Server{
		info:              info,
		transport:         transport,
		logger:            slog.Default(),
		sessionsWaitGroup: &sync.WaitGroup{},
		done:              make(chan struct{}),
	}
	for _, opt := range options {
		opt(&s)
	}
	if s.pingInterval == 0 {
		s.pingInterval = defaultServerPingInterval
	}
	if s.pingTimeout == 0 {
		s.pingTimeout = defaultServerPingTimeout
	}
	if s.pingTimeoutThreshold == 0 {
		s.pingTimeoutThreshold = defaultServerPingTimeoutThreshold
	}
	if s.sendTimeout == 0 {
		s.sendTimeout = defaultServerSendTimeout
	}

	// Prepares the server's capabilities based on the provided server implementations.

	s.capabilities = ServerCapabilities{}

	if s.promptServer != nil {
		s.capabilities.Prompts = &PromptsCapability{}
	}
	if s.resourceServer != nil {
		s.capabilities.Resources = &ResourcesCapability{}
	}
	if s.toolServer != nil {
		s.capabilities.Tools = &ToolsCapability{}
	}

	return s
}

// WithPromptServer returns a ServerOption that configures the prompt server implementation.
func WithPromptServer(srv PromptServer) ServerOption {
	return func(s *Server) {
		s.promptServer = srv
	}
}

// WithResourceServer returns a ServerOption that configures the resource server implementation.
func WithResourceServer(srv ResourceServer) ServerOption {
	return func(s *Server) {
		s.resourceServer = srv
	}
}

// WithToolServer returns a ServerOption that configures the tool server implementation.
func WithToolServer(srv ToolServer) ServerOption {
	return func(s *Server) {
		s.toolServer = srv
	}
}

// WithInstructions returns a ServerOption that configures the server instructions.
func WithInstructions(instructions string) ServerOption {
	return func(s *Server) {
		s.instructions = instructions
	}
}

// WithServerPingInterval returns a ServerOption that configures the server's ping interval.
func WithServerPingInterval(interval time.Duration) ServerOption {
	return func(s *Server) {
		s.pingInterval = interval
	}
}

// WithServerPingTimeout returns a ServerOption that configures the server's ping timeout.
func WithServerPingTimeout(timeout time.Duration) ServerOption {
	return func(s *Server) {
		s.pingTimeout = timeout
	}
}

// WithServerPingTimeoutThreshold sets the ping timeout threshold for the server.
// If the number of consecutive ping timeouts exceeds the threshold, the server will close the session.
func WithServerPingTimeoutThreshold(threshold int) ServerOption {
	return func(s *Server) {
		s.pingTimeoutThreshold = threshold
	}
}

// WithServerSendTimeout returns a ServerOption that configures the server's send timeout.
func WithServerSendTimeout(timeout time.Duration) ServerOption {
	return func(s *Server) {
		s.sendTimeout = timeout
	}
}

// WithServerOnClientConnected sets the callback for when a client connects.
// The callback's parameter is the ID and Info of the client.
func WithServerOnClientConnected(onClientConnected func(string, Info)) ServerOption {
	return func(s *Server) {
		s.onClientConnected = onClientConnected
	}
}

// WithServerOnClientDisconnected sets the callback for when a client disconnects.
// The callback's parameter is the ID of the client.
func WithServerOnClientDisconnected(onClientDisconnected func(string)) ServerOption {
	return func(s *Server) {
		s.onClientDisconnected = onClientDisconnected
	}
}

// WithServerLogger sets the logger for the server.
func WithServerLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger.With(
			slog.String("package", "chatmcp"),
			slog.String("component", "server"),
		)
	}
}

// Serve starts the MCP server and manages its lifecycle. It handles client connections
// and protocol messages according to the MCP specification.
//
// Serve blocks until the server is shut down.
func (s Server) Serve() {
	// This loop would break when the transport is closed.
	for sess := range s.transport.Sessions() {
		ss := serverSession{
			session:              sess,
			logger:               s.logger.With(slog.String("sessionID", sess.ID())),
			serverCap:            s.capabilities,
			serverInfo:           s.info,
			instructions:         s.instructions,
			pingInterval:         s.pingInterval,
			pingTimeout:          s.pingTimeout,
			pingTimeoutThreshold: s.pingTimeoutThreshold,
			sendTimeout:          s.sendTimeout,
			promptServer:         s.promptServer,
			resourceServer:       s.resourceServer,
			toolServer:           s.toolServer,
		}

		s.sessionsWaitGroup.Add(1)

		// This session would close itself when the client failed to initialize or
		// when consecutive pings fail beyond threshold.
		go func() {
			defer s.sessionsWaitGroup.Done()

			if s.onClientConnected != nil {
				s.onClientConnected(ss.session.ID(), ss.serverInfo)
			}

			ss.start(s.done)

			if s.onClientDisconnected != nil {
				s.onClientDisconnected(ss.session.ID())
			}
		}()
	}
}

// Shutdown gracefully shuts down the server by terminating all active sessions and cleaning up resources.
// It returns an error if the shutdown process fails or if the context is cancelled before the shutdown completes.
func (s Server) Shutdown(ctx context.Context) error {
	// Signal the server to shutdown and terminates all sessions
	close(s.done)

	// Wait for all sessions to finish
	s.sessionsWaitGroup.Wait()

	// Close the transport so the Sessions loop in Serve breaks.
	if err := s.transport.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown transport: %w", err)
	}

	return nil
}

func (s serverSession) start(done <-chan struct{}) {
	// This channel is used to feed the ping goroutine a message ID we received from the client.
	pingMessageIDs := make(chan MustString, 10)
	// Spawn a goroutine to handle the session's lifetime with ping.
	go s.ping(pingMessageIDs, done)
	// This base context is to make sure all the operations in the loop below are cancelled
	// when the loop is broken.
	baseCtx, baseCancel := context.WithCancel(context.Background())
	// This flag indicates whether we already established the session with the client.
	// Before this flag is set to true, other than ping and initialization message,
	// we should ignore any other messages from the client.
	initialized := false

	// This loop would break when the session is closed
	for msg := range s.session.Messages() {
		// Validate JSON-RPC version before processing any message
		if msg.JSONRPC != JSONRPCVersion {
			s.logger.Info("failed to handle message",
				slog.Any("message", msg),
				slog.String("err", errInvalidJSON.Error()),
			)
			continue
		}
		switch msg.Method {
		case methodPing:
			go func(msgID MustString) {
				// Send pong back to the client
				pongCtx, pongCancel := context.WithTimeout(context.Background(), s.pingTimeout)
				if err := s.session.Send(pongCtx, JSONRPCMessage{
					JSONRPC: JSONRPCVersion,
					ID:      msgID,
				}); err != nil {
					s.logger.Error("failed to send pong", slog.String("err", err.Error()))
				}
				pongCancel()
			}(msg.ID)
		case methodInitialize:
			// Handle initialization request.
			go s.handleInitializeRequest(msg)
		case MethodPromptsList, MethodPromptsGet, MethodResourcesList, MethodResourcesRead,
			MethodResourcesTemplatesList, MethodToolsList, MethodToolsCall:
			if !initialized {
				continue
			}
			// The call for the server implementation may block, so spawn a goroutine for it.
			// The baseCtx makes sure the call is cancelled when the session is closed.
			go s.handleServerImplementationMessage(baseCtx, msg)
		case methodNotificationsInitialized:
			// Successfully established the session with the client
			initialized = true
		case "":
			// This is the response from the client, it can be from an initialization error
			// or a ping request.

			// Check if this is an error response to our initialization request
			if !initialized && msg.Error != nil {
				// If we receive an error during initialization, log it and go on.
				s.logger.Error("initialization failed with error from client",
					slog.String("err", msg.Error.Error()))
				break
			}
			// Feed the ping goroutine with the message ID we received from the client.
			select {
			case <-done:
			case pingMessageIDs <- msg.ID:
			}
		}
	}
	// Cancel all the contexts that we created
	baseCancel()
	// Close the ping message ID channel
	close(pingMessageIDs)
}

func (s serverSession) handleInitializeRequest(msg JSONRPCMessage) {
	ctx, cancel := context.WithTimeout(context.Background(), s.sendTimeout)
	defer cancel()

	// Verify client's initialization request
	res, err := s.initializationHandshake(msg)
	if err != nil {
		s.logger.Info("invalid initialization request", slog.String("err", err.Error()))
		// Initialization failed, send the error to the client to notify them to close the session.
		if err := s.session.Send(ctx, JSONRPCMessage{
			JSONRPC: JSONRPCVersion,
			ID:      msg.ID,
			Error: &JSONRPCError{
				Code:    jsonRPCInvalidParamsCode,
				Message: err.Error(),
			},
		}); err != nil {
			s.logger.Error("failed to send initialization error", slog.String("err", err.Error()))
		}
		return
	}
	resBs, _ := json.Marshal(res)
	if err := s.session.Send(ctx, JSONRPCMessage{
		JSONRPC: JSONRPCVersion,
		ID:      msg.ID,
		Result:  resBs,
	}); err != nil {
		s.logger.Error("failed to send initialization result", slog.String("err", err.Error()))
	}
}

func (s serverSession) ping(messageIDs <-chan MustString, done <-chan struct{}) {
	defer s.session.Stop()

	pingTicker := time.NewTicker(s.pingInterval)
	failedPings := 0
	var msgID MustString

	for {
		if failedPings > s.pingTimeoutThreshold {
			s.logger.Warn("too many pings failed, closing session")
			return
		}

		select {
		case <-done:
			return
		case id := <-messageIDs:
			// Received id from client response, check whether it's the same as the one we sent.
			if id != msgID {
				continue
			}
			// If it's the same, we received a ping response, reset the failed ping counter.
			s.logger.Debug("received ping response, resetting failed ping counter")
			failedPings = 0
			continue
		case <-pingTicker.C:
		}

		ctx, cancel := context.WithTimeout(context.Background(), s.pingTimeout)

		// Send the ping message to the client.
		msgID = MustString(uuid.New().String())

		if err := s.session.Send(ctx, JSONRPCMessage{
			JSONRPC: JSONRPCVersion,
			ID:      msgID,
			Method:  methodPing,
		}); err != nil {
			s.logger.Warn("failed to send ping to client",
				slog.String("err", err.Error()))
			failedPings++
		}
		cancel()
	}
}

func (s serverSession) handleServerImplementationMessage(ctx context.Context, msg JSONRPCMessage) {
	// This variable is used to store the result from the server implementation
	// to be sent back to the client below.
	var result any
	// The err should always be an instance of JSONRPCError, we declare it as an error type
	// for the nil-check feature.
	var err error

	switch msg.Method {
	case MethodPromptsList:
		result, err = s.callListPrompts(ctx, msg)
	case MethodPromptsGet:
		result, err = s.callGetPrompt(ctx, msg)
	case MethodResourcesList:
		result, err = s.callListResources(ctx, msg)
	case MethodResourcesRead:
		result, err = s.callReadResource(ctx, msg)
	case MethodResourcesTemplatesList:
		result, err = s.callListResourceTemplates(ctx, msg)
	case MethodToolsList:
		result, err = s.callListTools(ctx, msg)
	case MethodToolsCall:
		result, err = s.callCallTool(ctx, msg)
	default:
		return
	}

	resMsg := JSONRPCMessage{
		JSONRPC: JSONRPCVersion,
		ID:      msg.ID,
	}

	if err != nil {
		jsonErr := JSONRPCError{}
		if errors.As(err, &jsonErr) {
			s.logger.Error("failed to call server implementation",
				slog.String("method", msg.Method),
				slog.String("err", err.Error()))
			resMsg.Error = &jsonErr
		}
	} else if result != nil {
		// Some call doesn't return any result, so this nil check is needed.
		resMsg.Result, _ = json.Marshal(result)
	}

	sendCtx, cancel := context.WithTimeout(context.Background(), s.sendTimeout)
	defer cancel()

	if err := s.session.Send(sendCtx, resMsg); err != nil {
		s.logger.Error("failed to send result", slog.String("err", err.Error()))
	}
}

func (s serverSession) initializationHandshake(msg JSONRPCMessage) (initializeResult, error) {
	var params initializeParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		return initializeResult{}, JSONRPCError{
			Code:    jsonRPCInvalidParamsCode,
			Message: fmt.Sprintf("failed to unmarshal params: %s", err.Error()),
		}
	}

	if params.ProtocolVersion != protocolVersion {
		return initializeResult{}, JSONRPCError{
			Code:    jsonRPCInvalidParamsCode,
			Message: fmt.Sprintf("protocol version mismatch: %s != %s", params.ProtocolVersion, protocolVersion),
		}
	}

	return initializeResult{
		ProtocolVersion: protocolVersion,
		Capabilities:    s.serverCap,
		ServerInfo:      s.serverInfo,
		Instructions:    s.instructions,
	}, nil
}

func (s serverSession) callListPrompts(ctx context.Context, msg JSONRPCMessage) (ListPromptResult, error) {
	if s.promptServer == nil {
		return ListPromptResult{}, JSONRPCError{
			Code:    jsonRPCMethodNotFoundCode,
			Message: "prompts not supported by server",
		}
	}

	var params ListPromptsParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		return ListPromptResult{}, JSONRPCError{
			Code:    jsonRPCInvalidParamsCode,
			Message: fmt.Errorf("failed to unmarshal params: %w", err).Error(),
		}
	}

	ps, err := s.promptServer.ListPrompts(ctx, params)
	if err != nil {
		nErr := fmt.Errorf("failed to list prompts: %w", err)
		return ListPromptResult{}, JSONRPCError{
			Code:    jsonRPCInternalErrorCode,
			Message: nErr.Error(),
		}
	}

	return ps, nil
}

func (s serverSession) callGetPrompt(ctx context.Context, msg JSONRPCMessage) (GetPromptResult, error) {
	if s.promptServer == nil {
		return GetPromptResult{}, JSONRPCError{
			Code:    jsonRPCMethodNotFoundCode,
			Message: "prompts not supported by server",
		}
	}

	var params GetPromptParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		return GetPromptResult{}, JSONRPCError{
			Code:    jsonRPCInvalidParamsCode,
			Message: fmt.Errorf("failed to unmarshal params: %w", err).Error(),
		}
	}

	p, err := s.promptServer.GetPrompt(ctx, params)
	if err != nil {
		nErr := fmt.Errorf("failed to get prompt: %w", err)
		return GetPromptResult{}, JSONRPCError{
			Code:    jsonRPCInternalErrorCode,
			Message: nErr.Error(),
		}
	}

	return p, nil
}

func (s serverSession) callListResources(ctx context.Context, msg JSONRPCMessage) (ListResourcesResult, error) {
	if s.resourceServer == nil {
		return ListResourcesResult{}, JSONRPCError{
			Code:    jsonRPCMethodNotFoundCode,
			Message: "resources not supported by server",
		}
	}

	var params ListResourcesParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		return ListResourcesResult{}, JSONRPCError{
			Code:    jsonRPCInvalidParamsCode,
			Message: fmt.Errorf("failed to unmarshal params: %w", err).Error(),
		}
	}

	rs, err := s.resourceServer.ListResources(ctx, params)
	if err != nil {
		nErr := fmt.Errorf("failed to list resources: %w", err)
		return ListResourcesResult{}, JSONRPCError{
			Code:    jsonRPCInternalErrorCode,
			Message: nErr.Error(),
		}
	}

	return rs, nil
}

func (s serverSession) callReadResource(ctx context.Context, msg JSONRPCMessage) (ReadResourceResult, error) {
	if s.resourceServer == nil {
		return ReadResourceResult{}, JSONRPCError{
			Code:    jsonRPCMethodNotFoundCode,
			Message: "resources not supported by server",
		}
	}

	var params ReadResourceParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		return ReadResourceResult{}, JSONRPCError{
			Code:    jsonRPCInvalidParamsCode,
			Message: fmt.Errorf("failed to unmarshal params: %w", err).Error(),
		}
	}

	r, err := s.resourceServer.ReadResource(ctx, params)
	if err != nil {
		nErr := fmt.Errorf("failed to read resource: %w", err)
		return ReadResourceResult{}, JSONRPCError{
			Code:    jsonRPCInternalErrorCode,
			Message: nErr.Error(),
		}
	}

	return r, nil
}

func (s serverSession) callListResourceTemplates(
	ctx context.Context,
	msg JSONRPCMessage,
) (ListResourceTemplatesResult, error) {
	if s.resourceServer == nil {
		return ListResourceTemplatesResult{}, JSONRPCError{
			Code:    jsonRPCMethodNotFoundCode,
			Message: "resources not supported by server",
		}
	}

	var params ListResourceTemplatesParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		return ListResourceTemplatesResult{}, JSONRPCError{
			Code:    jsonRPCInvalidParamsCode,
			Message: fmt.Errorf("failed to unmarshal params: %w", err).Error(),
		}
	}

	ts, err := s.resourceServer.ListResourceTemplates(ctx, params)
	if err != nil {
		nErr := fmt.Errorf("failed to list resource templates: %w", err)
		return ListResourceTemplatesResult{}, JSONRPCError{
			Code:    jsonRPCInternalErrorCode,
			Message: nErr.Error(),
		}
	}

	return ts, nil
}

func (s serverSession) callListTools(ctx context.Context, msg JSONRPCMessage) (ListToolsResult, error) {
	if s.toolServer == nil {
		return ListToolsResult{}, JSONRPCError{
			Code:    jsonRPCMethodNotFoundCode,
			Message: "tools not supported by server",
		}
	}

	var params ListToolsParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		return ListToolsResult{}, JSONRPCError{
			Code:    jsonRPCInvalidParamsCode,
			Message: fmt.Errorf("failed to unmarshal params: %w", err).Error(),
		}
	}

	ts, err := s.toolServer.ListTools(ctx, params)
	if err != nil {
		nErr := fmt.Errorf("failed to list tools: %w", err)
		return ListToolsResult{}, JSONRPCError{
			Code:    jsonRPCInternalErrorCode,
			Message: nErr.Error(),
		}
	}

	return ts, nil
}

func (s serverSession) callCallTool(ctx context.Context, msg JSONRPCMessage) (CallToolResult, error) {
	if s.toolServer == nil {
		return CallToolResult{}, JSONRPCError{
			Code:    jsonRPCMethodNotFoundCode,
			Message: "tools not supported by server",
		}
	}

	var params CallToolParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		return CallToolResult{}, JSONRPCError{
			Code:    jsonRPCInvalidParamsCode,
			Message: fmt.Errorf("failed to unmarshal params: %w", err).Error(),
		}
	}

	result, err := s.toolServer.CallTool(ctx, params)
	if err != nil {
		// Tool failures are reported as content so they reach the model's context,
		// not as protocol-level errors.
		result = CallToolResult{
			Content: []Content{
				{
					Type: ContentTypeText,
					Text: err.Error(),
				},
			},
			IsError: true,
		}
	}

	return result, nil
}
