package api

import (
	"net/http"
	"os"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/evelang/eve-core/internal/index"
	"github.com/evelang/eve-core/internal/runtime"
	"github.com/evelang/eve-core/internal/watch"
)

// APIHandler exposes one Program's transaction loop over HTTP: submit
// facts, install/remove blocks, send a remote transaction, and check
// health. Real-time watch diffs are streamed separately over the
// watch.Hub's websocket endpoint.
type APIHandler struct {
	program *runtime.Program
	hub     *watch.Hub
}

// SetupRouter wires the same CORS/auth/rate-limit middleware shape as the
// teacher's SetupRouter, repurposed from Bitcoin-forensics endpoints to the
// Eve engine's transaction/block/watch surface.
func SetupRouter(program *runtime.Program, hub *watch.Hub) *gin.Engine {
	r := gin.Default()

	allowedOrigins := os.Getenv("ALLOWED_ORIGINS")
	r.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if allowedOrigins == "" || allowedOrigins == "*" {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		} else {
			for _, allowed := range strings.Split(allowedOrigins, ",") {
				if strings.TrimSpace(allowed) == origin {
					c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
					break
				}
			}
		}
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	})

	handler := &APIHandler{program: program, hub: hub}

	pub := r.Group("/api/v1")
	{
		pub.GET("/health", handler.handleHealth)
		pub.GET("/stream", hub.Subscribe)
	}

	auth := r.Group("/api/v1")
	auth.Use(AuthMiddleware())
	auth.Use(NewRateLimiter(60, 10).Middleware())
	{
		auth.POST("/transact", handler.handleTransact)
		auth.POST("/remote", handler.handleRemoteTransact)
		auth.POST("/blocks", handler.handleInstallBlock)
		auth.DELETE("/blocks/:name", handler.handleRemoveBlock)
	}

	return r
}

func (h *APIHandler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "operational",
		"engine": "eve-core",
		"name":   h.program.Name,
	})
}

type wireRawChange struct {
	E     wireValue `json:"e"`
	A     wireValue `json:"a"`
	V     wireValue `json:"v"`
	N     wireValue `json:"n"`
	Count int32     `json:"count"`
}

// handleTransact submits one external transaction's changes.
// POST /api/v1/transact { "changes": [ {"e":{"kind":"recordid","str":"e1"}, "a":{"kind":"string","str":"age"}, "v":{"kind":"number","num":30}, "count":1} ] }
func (h *APIHandler) handleTransact(c *gin.Context) {
	var req struct {
		Changes []wireRawChange `json:"changes"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}

	changes := make([]watch.RawChange, len(req.Changes))
	for i, wc := range req.Changes {
		e, err1 := wc.E.toValue()
		a, err2 := wc.A.toValue()
		v, err3 := wc.V.toValue()
		n, err4 := wc.N.toValue()
		if err := firstErr(err1, err2, err3, err4); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid change", "index": i, "details": err.Error()})
			return
		}
		count := wc.Count
		if count == 0 {
			count = 1
		}
		changes[i] = watch.RawChange{E: e, A: a, V: v, N: n, Count: count}
	}

	h.program.Send(runtime.RunLoopMessage{Kind: runtime.MsgTransaction, Changes: changes})
	c.JSON(http.StatusAccepted, gin.H{"status": "queued", "changes": len(changes)})
}

type wireRemoteChange struct {
	E    wireValue `json:"e"`
	A    wireValue `json:"a"`
	V    wireValue `json:"v"`
	For  wireValue `json:"for"`
	Type wireValue `json:"type"`
	From wireValue `json:"from"`
	To   wireValue `json:"to"`

	Count int32 `json:"count"`
}

// handleRemoteTransact submits a cross-Program RemoteTransaction directly
// to this Program, bypassing the Router — used when a caller already knows
// which Program instance should receive it.
func (h *APIHandler) handleRemoteTransact(c *gin.Context) {
	var req wireRemoteChange
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}

	e, err1 := req.E.toValue()
	a, err2 := req.A.toValue()
	v, err3 := req.V.toValue()
	forV, err4 := req.For.toValue()
	typeV, err5 := req.Type.toValue()
	fromV, err6 := req.From.toValue()
	toV, err7 := req.To.toValue()
	if err := firstErr(err1, err2, err3, err4, err5, err6, err7); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid remote change", "details": err.Error()})
		return
	}

	in := h.program.Interner()
	rc := index.RemoteChange{
		E: in.Intern(e), A: in.Intern(a), V: in.Intern(v),
		For: in.Intern(forV), Type: in.Intern(typeV),
		From: in.Intern(fromV), To: in.Intern(toV),
		Count: req.Count,
	}
	if rc.Count == 0 {
		rc.Count = 1
	}

	h.program.Send(runtime.RunLoopMessage{Kind: runtime.MsgRemoteTransaction, Remote: &rc})
	c.JSON(http.StatusAccepted, gin.H{"status": "queued"})
}

// handleInstallBlock compiles a wireBlock and installs it.
// POST /api/v1/blocks { "name": "...", "id": 1, "numRegisters": 2, "constraints": [...] }
func (h *APIHandler) handleInstallBlock(c *gin.Context) {
	var wb wireBlock
	if err := c.ShouldBindJSON(&wb); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}
	if wb.Name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "block name is required"})
		return
	}

	block, err := decodeBlock(h.program.Interner(), wb)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to compile block", "details": err.Error()})
		return
	}

	h.program.Send(runtime.RunLoopMessage{
		Kind: runtime.MsgCodeTransaction,
		Code: &runtime.CodeChange{Name: wb.Name, Block: block, Action: runtime.CodeInstall},
	})
	c.JSON(http.StatusAccepted, gin.H{"status": "queued", "name": wb.Name})
}

// handleRemoveBlock retracts the named block's derivations and unregisters it.
func (h *APIHandler) handleRemoveBlock(c *gin.Context) {
	name := c.Param("name")
	h.program.Send(runtime.RunLoopMessage{
		Kind: runtime.MsgCodeTransaction,
		Code: &runtime.CodeChange{Name: name, Action: runtime.CodeUninstall},
	})
	c.JSON(http.StatusAccepted, gin.H{"status": "queued", "name": name})
}
