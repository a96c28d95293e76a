package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ClientOption is a function that configures a client.
type ClientOption func(*Client)

// Client implements a Model Context Protocol (MCP) client that enables communication
// between LLM applications and external data sources and tools. It manages the
// connection lifecycle, handles protocol messages, and provides access to MCP
// server capabilities.
//
// A Client must be created using NewClient() and requires Connect() to be called
// before any operations can be performed. The client should be properly closed
// using Close() when it's no longer needed.
type Client struct {
	capabilities       ClientCapabilities
	info               Info
	serverInfo         Info
	serverCapabilities ServerCapabilities
	serverInstructions string
	transport          ClientTransport
	session            Session

	writeTimeout         time.Duration
	readTimeout          time.Duration
	pingInterval         time.Duration
	pingTimeoutThreshold int

	initialized bool
	logger      *slog.Logger

	waitForResults chan waitForResultReq
	results        chan JSONRPCMessage

	closeOnce sync.Once
	closed    chan struct{}
}

type waitForResultReq struct {
	msgID string
	// resChan receives the channel the response message will be delivered on.
	resChan chan chan JSONRPCMessage
}

var (
	defaultClientWriteTimeout = 30 * time.Second
	defaultClientReadTimeout  = 30 * time.Second
	defaultClientPingInterval = 30 * time.Second

	defaultClientPingTimeoutThreshold = 3
)

// WithClientWriteTimeout sets the write timeout for the client.
func WithClientWriteTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.writeTimeout = timeout
	}
}

// WithClientReadTimeout sets the read timeout for the client.
func WithClientReadTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.readTimeout = timeout
	}
}

// WithClientPingInterval sets the ping interval for the client.
func WithClientPingInterval(interval time.Duration) ClientOption {
	return func(c *Client) {
		c.pingInterval = interval
	}
}

// WithClientPingTimeoutThreshold sets the ping timeout threshold for the client.
// If the number of consecutive ping timeouts exceeds the threshold, the client will close the session.
func WithClientPingTimeoutThreshold(threshold int) ClientOption {
	return func(c *Client) {
		c.pingTimeoutThreshold = threshold
	}
}

// WithClientLogger sets the logger for the client.
func WithClientLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger.With(
			slog.String("package", "chatmcp"),
			slog.String("component", "client"),
		)
	}
}

// NewClient creates a new Model Context Protocol (MCP) client with the specified configuration.
//
// The info parameter provides client identification and version information. The transport
// parameter defines how the client communicates with the server. Timeouts and intervals
// can be configured through ClientOption functions.
//
// The client will not be connected until Connect() is called.
func NewClient(
	info Info,
	transport ClientTransport,
	options ...ClientOption,
) *Client {
	c := &Client{
		info:           info,
		transport:      transport,
		logger:         slog.Default(),
		waitForResults: make(chan waitForResultReq, 10),
		results:        make(chan JSONRPCMessage),
		closed:         make(chan struct{}),
	}
	for _, opt := range options {
		opt(c)
	}

	if c.writeTimeout == 0 {
		c.writeTimeout = defaultClientWriteTimeout
	}
	if c.readTimeout == 0 {
		c.readTimeout = defaultClientReadTimeout
	}
	if c.pingInterval == 0 {
		c.pingInterval = defaultClientPingInterval
	}
	if c.pingTimeoutThreshold == 0 {
		c.pingTimeoutThreshold = defaultClientPingTimeoutThreshold
	}

	c.capabilities = ClientCapabilities{}

	return c
}

// Connect establishes a session with the MCP server and initializes the protocol handshake.
// It starts background routines for message handling and server health checks through periodic pings.
//
// The initialization process verifies protocol version compatibility. If the server
// responds with a different protocol version, Connect reports the mismatch to the
// server and returns an error.
//
// Connect must be called after creating a new client and before making any other client method calls.
// It returns an error if the session cannot be established or if the initialization fails.
func (c *Client) Connect(ctx context.Context) error {
	sess, err := c.transport.StartSession(ctx)
	if err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}
	c.session = sess

	// Consume the session's messages before sending anything, so the response
	// to the initialize request cannot be missed.
	initMsgID := uuid.New().String()
	initResults := make(chan error, 1)
	go c.listenMessages(initMsgID, sess.Messages(), initResults)

	if err := c.sendInitialize(ctx, MustString(initMsgID)); err != nil {
		sess.Stop()
		return fmt.Errorf("failed to send initialize request: %w", err)
	}

	ticker := time.NewTicker(c.readTimeout)
	defer ticker.Stop()

	select {
	case <-ctx.Done():
		sess.Stop()
		return ctx.Err()
	case <-ticker.C:
		sess.Stop()
		return errors.New("initialize timeout")
	case err := <-initResults:
		if err != nil {
			sess.Stop()
			return fmt.Errorf("failed to initialize: %w", err)
		}
	}

	return nil
}

// Close terminates the session with the server and stops all background routines.
// It is safe to call Close multiple times.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.closed)
		if c.session != nil {
			c.session.Stop()
		}
	})
}

// ListPrompts retrieves a paginated list of available prompts from the server.
// It returns a ListPromptResult containing prompt metadata and pagination information.
//
// See ListPromptsParams for details on available parameters including cursor for pagination.
func (c *Client) ListPrompts(ctx context.Context, params ListPromptsParams) (ListPromptResult, error) {
	if !c.initialized {
		return ListPromptResult{}, errors.New("client not initialized")
	}
	if c.serverCapabilities.Prompts == nil {
		return ListPromptResult{}, errors.New("prompts not supported by server")
	}

	paramsBs, err := json.Marshal(params)
	if err != nil {
		return ListPromptResult{}, fmt.Errorf("failed to marshal params: %w", err)
	}
	res, err := c.sendRequest(ctx, JSONRPCMessage{
		JSONRPC: JSONRPCVersion,
		Method:  MethodPromptsList,
		Params:  paramsBs,
	})
	if err != nil {
		return ListPromptResult{}, err
	}

	if res.Error != nil {
		return ListPromptResult{}, fmt.Errorf("result error: %w", res.Error)
	}

	var result ListPromptResult
	if err := json.Unmarshal(res.Result, &result); err != nil {
		return ListPromptResult{}, err
	}

	return result, nil
}

// GetPrompt retrieves a specific prompt by name with the given arguments.
// It returns a GetPromptResult containing the prompt's content and metadata.
//
// See GetPromptParams for details on available parameters including prompt name
// and arguments.
func (c *Client) GetPrompt(ctx context.Context, params GetPromptParams) (GetPromptResult, error) {
	if !c.initialized {
		return GetPromptResult{}, errors.New("client not initialized")
	}
	if c.serverCapabilities.Prompts == nil {
		return GetPromptResult{}, errors.New("prompts not supported by server")
	}

	paramsBs, err := json.Marshal(params)
	if err != nil {
		return GetPromptResult{}, fmt.Errorf("failed to marshal params: %w", err)
	}
	res, err := c.sendRequest(ctx, JSONRPCMessage{
		JSONRPC: JSONRPCVersion,
		Method:  MethodPromptsGet,
		Params:  paramsBs,
	})
	if err != nil {
		return GetPromptResult{}, err
	}

	if res.Error != nil {
		return GetPromptResult{}, fmt.Errorf("result error: %w", res.Error)
	}

	var result GetPromptResult
	if err := json.Unmarshal(res.Result, &result); err != nil {
		return GetPromptResult{}, err
	}

	return result, nil
}

// ListResources retrieves a paginated list of available resources from the server.
// It returns a ListResourcesResult containing resource metadata and pagination information.
//
// See ListResourcesParams for details on available parameters including cursor for
// pagination.
func (c *Client) ListResources(ctx context.Context, params ListResourcesParams) (ListResourcesResult, error) {
	if !c.initialized {
		return ListResourcesResult{}, errors.New("client not initialized")
	}
	if c.serverCapabilities.Resources == nil {
		return ListResourcesResult{}, errors.New("resources not supported by server")
	}

	paramsBs, err := json.Marshal(params)
	if err != nil {
		return ListResourcesResult{}, fmt.Errorf("failed to marshal params: %w", err)
	}
	res, err := c.sendRequest(ctx, JSONRPCMessage{
		JSONRPC: JSONRPCVersion,
		Method:  MethodResourcesList,
		Params:  paramsBs,
	})
	if err != nil {
		return ListResourcesResult{}, err
	}

	if res.Error != nil {
		return ListResourcesResult{}, fmt.Errorf("result error: %w", res.Error)
	}

	var result ListResourcesResult
	if err := json.Unmarshal(res.Result, &result); err != nil {
		return ListResourcesResult{}, err
	}

	return result, nil
}

// ReadResource retrieves the content and metadata of a specific resource.
// It returns a ReadResourceResult containing the resource's content and type.
//
// See ReadResourceParams for details on available parameters including resource URI.
func (c *Client) ReadResource(ctx context.Context, params ReadResourceParams) (ReadResourceResult, error) {
	if !c.initialized {
		return ReadResourceResult{}, errors.New("client not initialized")
	}
	if c.serverCapabilities.Resources == nil {
		return ReadResourceResult{}, errors.New("resources not supported by server")
	}

	paramsBs, err := json.Marshal(params)
	if err != nil {
		return ReadResourceResult{}, fmt.Errorf("failed to marshal params: %w", err)
	}
	res, err := c.sendRequest(ctx, JSONRPCMessage{
		JSONRPC: JSONRPCVersion,
		Method:  MethodResourcesRead,
		Params:  paramsBs,
	})
	if err != nil {
		return ReadResourceResult{}, err
	}

	if res.Error != nil {
		return ReadResourceResult{}, fmt.Errorf("result error: %w", res.Error)
	}

	var result ReadResourceResult
	if err := json.Unmarshal(res.Result, &result); err != nil {
		return ReadResourceResult{}, err
	}

	return result, nil
}

// ListResourceTemplates retrieves a list of available resource templates from the server.
// Resource templates allow servers to expose parameterized resources using URI templates.
func (c *Client) ListResourceTemplates(
	ctx context.Context,
	params ListResourceTemplatesParams,
) (ListResourceTemplatesResult, error) {
	if !c.initialized {
		return ListResourceTemplatesResult{}, errors.New("client not initialized")
	}
	if c.serverCapabilities.Resources == nil {
		return ListResourceTemplatesResult{}, errors.New("resources not supported by server")
	}

	paramsBs, err := json.Marshal(params)
	if err != nil {
		return ListResourceTemplatesResult{}, fmt.Errorf("failed to marshal params: %w", err)
	}
	res, err := c.sendRequest(ctx, JSONRPCMessage{
		JSONRPC: JSONRPCVersion,
		Method:  MethodResourcesTemplatesList,
		Params:  paramsBs,
	})
	if err != nil {
		return ListResourceTemplatesResult{}, err
	}

	if res.Error != nil {
		return ListResourceTemplatesResult{}, fmt.Errorf("result error: %w", res.Error)
	}

	var result ListResourceTemplatesResult
	if err := json.Unmarshal(res.Result, &result); err != nil {
		return ListResourceTemplatesResult{}, err
	}

	return result, nil
}

// ListTools retrieves a paginated list of available tools from the server.
// It returns a ListToolsResult containing tool metadata and pagination information.
//
// See ListToolsParams for details on available parameters including cursor for
// pagination.
func (c *Client) ListTools(ctx context.Context, params ListToolsParams) (ListToolsResult, error) {
	if !c.initialized {
		return ListToolsResult{}, errors.New("client not initialized")
	}
	if c.serverCapabilities.Tools == nil {
		return ListToolsResult{}, errors.New("tools not supported by server")
	}

	paramsBs, err := json.Marshal(params)
	if err != nil {
		return ListToolsResult{}, fmt.Errorf("failed to marshal params: %w", err)
	}
	res, err := c.sendRequest(ctx, JSONRPCMessage{
		JSONRPC: JSONRPCVersion,
		Method:  MethodToolsList,
		Params:  paramsBs,
	})
	if err != nil {
		return ListToolsResult{}, err
	}

	if res.Error != nil {
		return ListToolsResult{}, fmt.Errorf("result error: %w", res.Error)
	}

	var result ListToolsResult
	if err := json.Unmarshal(res.Result, &result); err != nil {
		return ListToolsResult{}, err
	}

	return result, nil
}

// CallTool executes a specific tool and returns its result.
// It provides a way to invoke server-side tools that can perform specialized operations.
//
// Tool-level failures are reported inside the returned CallToolResult with IsError set,
// so the caller can feed them back to the model. CallTool returns an error only for
// transport or protocol failures.
//
// See CallToolParams for details on available parameters including tool name and arguments.
func (c *Client) CallTool(ctx context.Context, params CallToolParams) (CallToolResult, error) {
	if !c.initialized {
		return CallToolResult{}, errors.New("client not initialized")
	}
	if c.serverCapabilities.Tools == nil {
		return CallToolResult{}, errors.New("tools not supported by server")
	}

	paramsBs, err := json.Marshal(params)
	if err != nil {
		return CallToolResult{}, fmt.Errorf("failed to marshal params: %w", err)
	}
	res, err := c.sendRequest(ctx, JSONRPCMessage{
		JSONRPC: JSONRPCVersion,
		Method:  MethodToolsCall,
		Params:  paramsBs,
	})
	if err != nil {
		return CallToolResult{}, err
	}

	if res.Error != nil {
		return CallToolResult{}, fmt.Errorf("result error: %w", res.Error)
	}

	var result CallToolResult
	if err := json.Unmarshal(res.Result, &result); err != nil {
		return CallToolResult{}, err
	}

	return result, nil
}

// ServerInfo returns the server's info.
func (c *Client) ServerInfo() Info {
	return c.serverInfo
}

// ServerInstructions returns the instructions the server provided during initialization.
func (c *Client) ServerInstructions() string {
	return c.serverInstructions
}

// PromptServerSupported returns true if the server supports prompt management.
func (c *Client) PromptServerSupported() bool {
	return c.serverCapabilities.Prompts != nil
}

// ResourceServerSupported returns true if the server supports resource management.
func (c *Client) ResourceServerSupported() bool {
	return c.serverCapabilities.Resources != nil
}

// ToolServerSupported returns true if the server supports tool management.
func (c *Client) ToolServerSupported() bool {
	return c.serverCapabilities.Tools != nil
}

func (c *Client) start() {
	// Tracks pending requests awaiting responses, keyed by message ID.
	waitForResults := make(map[string]chan JSONRPCMessage)

	for {
		select {
		case <-c.closed:
			return
		case req := <-c.waitForResults:
			resChan := make(chan JSONRPCMessage, 1)
			waitForResults[req.msgID] = resChan
			req.resChan <- resChan
		case msg := <-c.results:
			resChan, ok := waitForResults[string(msg.ID)]
			if !ok {
				continue
			}
			resChan <- msg
			delete(waitForResults, string(msg.ID))
		}
	}
}

func (c *Client) pingLoop() {
	// The session lives as long as this loop does.
	defer c.session.Stop()

	pingTicker := time.NewTicker(c.pingInterval)
	defer pingTicker.Stop()

	failedPings := 0

	for {
		select {
		case <-c.closed:
			return
		case <-pingTicker.C:
		}

		if err := c.ping(); err != nil {
			c.logger.Error("failed to send ping", "err", err)
			failedPings++
			if failedPings > c.pingTimeoutThreshold {
				c.logger.Warn("too many pings failed, closing session")
				return
			}
			continue
		}
		failedPings = 0
	}
}

func (c *Client) ping() error {
	ctx, cancel := context.WithTimeout(context.Background(), c.writeTimeout)
	defer cancel()

	res, err := c.sendRequest(ctx, JSONRPCMessage{
		JSONRPC: JSONRPCVersion,
		Method:  methodPing,
	})
	if err != nil {
		return fmt.Errorf("failed to send ping: %w", err)
	}
	if res.Error != nil {
		return fmt.Errorf("error response: %w", res.Error)
	}

	return nil
}

func (c *Client) listenMessages(initMsgID string, msgs iter.Seq[JSONRPCMessage], initResults chan<- error) {
	for msg := range msgs {
		if msg.JSONRPC != JSONRPCVersion {
			c.logger.Error("invalid jsonrpc version", "version", msg.JSONRPC)
			continue
		}

		switch msg.Method {
		case methodPing:
			// Send pong back to the server
			if err := c.sendResult(context.Background(), msg.ID, nil); err != nil {
				c.logger.Error("failed to handle ping", "err", err)
			}
		case "":
			// This is a response, either to our initialization request or to one
			// of the requests issued through sendRequest.
			if !c.initialized && string(msg.ID) == initMsgID {
				err := c.handleInitialize(context.Background(), msg)
				if err == nil {
					go c.start()
					go c.pingLoop()
				}
				initResults <- err
				continue
			}
			select {
			case <-c.closed:
				return
			case c.results <- msg:
			}
		}
	}
}

func (c *Client) sendInitialize(ctx context.Context, msgID MustString) error {
	params := initializeParams{
		ProtocolVersion: protocolVersion,
		Capabilities:    c.capabilities,
		ClientInfo:      c.info,
	}
	paramsBs, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("failed to marshal initialize params: %w", err)
	}

	sCtx, sCancel := context.WithTimeout(ctx, c.writeTimeout)
	defer sCancel()

	return c.session.Send(sCtx, JSONRPCMessage{
		JSONRPC: JSONRPCVersion,
		ID:      msgID,
		Method:  methodInitialize,
		Params:  paramsBs,
	})
}

func (c *Client) handleInitialize(ctx context.Context, msg JSONRPCMessage) error {
	if msg.Error != nil {
		return fmt.Errorf("initialize error: %w", msg.Error)
	}

	var result initializeResult
	if err := json.Unmarshal(msg.Result, &result); err != nil {
		return fmt.Errorf("failed to unmarshal initialize result: %w", err)
	}

	if result.ProtocolVersion != protocolVersion {
		nErr := fmt.Errorf("protocol version mismatch: %s != %s", result.ProtocolVersion, protocolVersion)
		if err := c.sendError(ctx, msg.ID, JSONRPCError{
			Code:    jsonRPCInvalidParamsCode,
			Message: errMsgUnsupportedProtocolVersion,
			Data:    map[string]any{"error": nErr.Error()},
		}); err != nil {
			nErr = fmt.Errorf("%w: failed to send error on initialize: %w", nErr, err)
		}
		return nErr
	}

	c.serverInfo = result.ServerInfo
	c.serverCapabilities = result.Capabilities
	c.serverInstructions = result.Instructions
	c.initialized = true

	return c.sendNotification(context.Background(), methodNotificationsInitialized, nil)
}

func (c *Client) sendRequest(ctx context.Context, msg JSONRPCMessage) (JSONRPCMessage, error) {
	msgID := uuid.New().String()
	msg.ID = MustString(msgID)

	// We create a channel to receive the response channel, allowing for async request handling
	resChannels := make(chan chan JSONRPCMessage)
	wfrReq := waitForResultReq{
		msgID:   msgID,
		resChan: resChannels,
	}

	select {
	case <-c.closed:
		return JSONRPCMessage{}, errors.New("client closed")
	case <-ctx.Done():
		return JSONRPCMessage{}, ctx.Err()
	case c.waitForResults <- wfrReq:
	}

	var results chan JSONRPCMessage
	select {
	case <-c.closed:
		return JSONRPCMessage{}, errors.New("client closed")
	case results = <-resChannels:
	}

	sCtx, sCancel := context.WithTimeout(ctx, c.writeTimeout)
	defer sCancel()

	if err := c.session.Send(sCtx, msg); err != nil {
		return JSONRPCMessage{}, err
	}

	ticker := time.NewTicker(c.readTimeout)
	defer ticker.Stop()

	select {
	case <-ticker.C:
		return JSONRPCMessage{}, errors.New("request timeout")
	case <-ctx.Done():
		return JSONRPCMessage{}, ctx.Err()
	case resMsg := <-results:
		return resMsg, nil
	}
}

func (c *Client) sendNotification(ctx context.Context, method string, params any) error {
	paramsBs, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("failed to marshal params: %w", err)
	}

	notif := JSONRPCMessage{
		JSONRPC: JSONRPCVersion,
		Method:  method,
		Params:  paramsBs,
	}

	sCtx, sCancel := context.WithTimeout(ctx, c.writeTimeout)
	defer sCancel()

	if err := c.session.Send(sCtx, notif); err != nil {
		return fmt.Errorf("failed to send notification: %w", err)
	}

	return nil
}

func (c *Client) sendResult(ctx context.Context, id MustString, result any) error {
	resBs, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}

	msg := JSONRPCMessage{
		JSONRPC: JSONRPCVersion,
		ID:      id,
		Result:  resBs,
	}

	sCtx, sCancel := context.WithTimeout(ctx, c.writeTimeout)
	defer sCancel()

	if err := c.session.Send(sCtx, msg); err != nil {
		return fmt.Errorf("failed to send result: %w", err)
	}

	return nil
}

func (c *Client) sendError(ctx context.Context, id MustString, jsonErr JSONRPCError) error {
	c.logger.Error("request error", "err", jsonErr)
	msg := JSONRPCMessage{
		JSONRPC: JSONRPCVersion,
		ID:      id,
		Error:   &jsonErr,
	}

	sCtx, sCancel := context.WithTimeout(ctx, c.writeTimeout)
	defer sCancel()

	if err := c.session.Send(sCtx, msg); err != nil {
		return fmt.Errorf("failed to send error: %w", err)
	}

	return nil
}
