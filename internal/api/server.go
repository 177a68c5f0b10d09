package api

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"pv-emulator/internal/conditions"
	"pv-emulator/internal/mqtt"
	"pv-emulator/internal/sdm"
	"pv-emulator/internal/storage"

	"github.com/gin-gonic/gin"
)

const (
	curvePoints        = 200
	defaultListLimit   = 100
	conditionsCacheTTL = time.Minute
	conditionsTimeout  = 12 * time.Second
)

type Server struct {
	router    *gin.Engine
	server    *http.Server
	db        *storage.Database
	publisher *mqtt.Publisher
	port      int
	authToken string
	origins   []string

	conditionsMu sync.Mutex
	conditions   conditions.Provider
	lastCond     *conditions.Data
	lastCondAt   time.Time
}

type ServerConfig struct {
	Port        int
	Database    *storage.Database
	Publisher   *mqtt.Publisher
	Conditions  conditions.Provider
	AuthToken   string
	CORSOrigins []string
}

func NewServer(cfg ServerConfig) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(gin.Logger())

	s := &Server{
		router:     router,
		db:         cfg.Database,
		publisher:  cfg.Publisher,
		port:       cfg.Port,
		authToken:  cfg.AuthToken,
		origins:    cfg.CORSOrigins,
		conditions: cfg.Conditions,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(s.corsMiddleware())

	// Health check stays open even when a token guard is configured
	s.router.GET("/health", s.healthHandler)

	guarded := s.router.Group("/")
	guarded.Use(s.authMiddleware())
	{
		guarded.GET("/", s.rootHandler)
		guarded.GET("/modules", s.listModulesHandler)
		guarded.POST("/modules", s.createModuleHandler)
		guarded.GET("/modules/:id", s.getModuleHandler)
		guarded.PUT("/modules/:id", s.updateModuleHandler)
		guarded.DELETE("/modules/:id", s.deleteModuleHandler)
		guarded.POST("/simulate_iv_curve/", s.simulateHandler)
		guarded.GET("/conditions/live", s.liveConditionsHandler)
	}
}

func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", s.port),
		Handler: s.router,
	}

	log.Printf("API server starting on port %d", s.port)
	return s.server.ListenAndServe()
}

func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// Handler exposes the router for httptest.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) corsMiddleware() gin.HandlerFunc {
	allowed := make(map[string]bool, len(s.origins))
	for _, origin := range s.origins {
		allowed[origin] = true
	}

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin != "" && allowed[origin] {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Access-Control-Allow-Credentials", "true")
			c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Authorization, Content-Type")
		}
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// authMiddleware enforces the configured bearer token. With no token
// configured every request passes, matching the open reference deployment.
func (s *Server) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.authToken == "" {
			c.Next()
			return
		}
		header := c.GetHeader("Authorization")
		if header != "Bearer "+s.authToken {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"detail": "Not authenticated"})
			return
		}
		c.Next()
	}
}

func (s *Server) rootHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "Solar PV Emulator API is running!"})
}

func (s *Server) healthHandler(c *gin.Context) {
	count, err := s.db.CountModules()
	status := "healthy"
	if err != nil {
		status = "degraded"
	}
	c.JSON(http.StatusOK, gin.H{
		"status":    status,
		"modules":   count,
		"timestamp": time.Now(),
	})
}

func (s *Server) listModulesHandler(c *gin.Context) {
	skip, err := strconv.Atoi(c.DefaultQuery("skip", "0"))
	if err != nil || skip < 0 {
		skip = 0
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultListLimit)))
	if err != nil || limit <= 0 {
		limit = defaultListLimit
	}

	modules, err := s.db.ListModules(skip, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"detail": err.Error()})
		return
	}
	c.JSON(http.StatusOK, modules)
}

type moduleCreateRequest struct {
	Name     *string  `json:"name"`
	Voc      *float64 `json:"voc"`
	Isc      *float64 `json:"isc"`
	Vmp      *float64 `json:"vmp"`
	Imp      *float64 `json:"imp"`
	Ns       *int     `json:"ns"`
	Kv       *float64 `json:"kv"`
	Ki       *float64 `json:"ki"`
	GammaPmp *float64 `json:"gamma_pmp"`
	Celltype *string  `json:"celltype"`
}

func (r *moduleCreateRequest) missing() []string {
	numeric := []struct {
		name  string
		value *float64
	}{
		{"voc", r.Voc}, {"isc", r.Isc}, {"vmp", r.Vmp}, {"imp", r.Imp},
		{"kv", r.Kv}, {"ki", r.Ki}, {"gamma_pmp", r.GammaPmp},
	}

	var fields []string
	if r.Name == nil || strings.TrimSpace(*r.Name) == "" {
		fields = append(fields, "name")
	}
	for _, f := range numeric {
		if f.value == nil {
			fields = append(fields, f.name)
		}
	}
	if r.Ns == nil {
		fields = append(fields, "ns")
	}
	if r.Celltype == nil {
		fields = append(fields, "celltype")
	}
	return fields
}

func (s *Server) createModuleHandler(c *gin.Context) {
	var req moduleCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
		return
	}
	if fields := req.missing(); len(fields) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "Missing required fields: " + strings.Join(fields, ", ")})
		return
	}
	if !storage.ValidCelltype(*req.Celltype) {
		c.JSON(http.StatusBadRequest, gin.H{
			"detail": "Invalid celltype. Must be one of: " + strings.Join(storage.Celltypes, ", "),
		})
		return
	}
	if *req.Voc <= 0 || *req.Isc <= 0 || *req.Vmp <= 0 || *req.Imp <= 0 || *req.Ns <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "Electrical parameters must be positive"})
		return
	}

	// Duplicate names are rejected case-insensitively
	if _, err := s.db.FindModuleByName(*req.Name); err == nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "Module with this name already exists"})
		return
	}

	module := storage.PVModule{
		Name:     *req.Name,
		Voc:      *req.Voc,
		Isc:      *req.Isc,
		Vmp:      *req.Vmp,
		Imp:      *req.Imp,
		Ns:       *req.Ns,
		Kv:       *req.Kv,
		Ki:       *req.Ki,
		GammaPmp: *req.GammaPmp,
		Celltype: *req.Celltype,
	}
	if err := s.db.CreateModule(&module); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"detail": err.Error()})
		return
	}

	s.publisher.PublishModuleEvent("created", module.ID, module.Name)
	c.JSON(http.StatusCreated, module)
}

func (s *Server) getModuleHandler(c *gin.Context) {
	id, ok := s.moduleID(c)
	if !ok {
		return
	}

	module, err := s.db.GetModule(id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"detail": "Module not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"detail": err.Error()})
		return
	}
	c.JSON(http.StatusOK, module)
}

func (s *Server) updateModuleHandler(c *gin.Context) {
	id, ok := s.moduleID(c)
	if !ok {
		return
	}

	module, err := s.db.GetModule(id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"detail": "Module not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"detail": err.Error()})
		return
	}

	var req moduleCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
		return
	}

	if req.Celltype != nil && !storage.ValidCelltype(*req.Celltype) {
		c.JSON(http.StatusBadRequest, gin.H{
			"detail": "Invalid celltype. Must be one of: " + strings.Join(storage.Celltypes, ", "),
		})
		return
	}
	if req.Name != nil && !strings.EqualFold(*req.Name, module.Name) {
		if _, err := s.db.FindModuleByName(*req.Name); err == nil {
			c.JSON(http.StatusBadRequest, gin.H{"detail": "Module with this name already exists"})
			return
		}
	}

	applyUpdate(module, &req)
	if err := s.db.SaveModule(module); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"detail": err.Error()})
		return
	}

	s.publisher.PublishModuleEvent("updated", module.ID, module.Name)
	c.JSON(http.StatusOK, module)
}

func applyUpdate(module *storage.PVModule, req *moduleCreateRequest) {
	if req.Name != nil {
		module.Name = *req.Name
	}
	if req.Voc != nil {
		module.Voc = *req.Voc
	}
	if req.Isc != nil {
		module.Isc = *req.Isc
	}
	if req.Vmp != nil {
		module.Vmp = *req.Vmp
	}
	if req.Imp != nil {
		module.Imp = *req.Imp
	}
	if req.Ns != nil {
		module.Ns = *req.Ns
	}
	if req.Kv != nil {
		module.Kv = *req.Kv
	}
	if req.Ki != nil {
		module.Ki = *req.Ki
	}
	if req.GammaPmp != nil {
		module.GammaPmp = *req.GammaPmp
	}
	if req.Celltype != nil {
		module.Celltype = *req.Celltype
	}
}

func (s *Server) deleteModuleHandler(c *gin.Context) {
	id, ok := s.moduleID(c)
	if !ok {
		return
	}

	if err := s.db.DeleteModule(id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"detail": "Module not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"detail": err.Error()})
		return
	}

	s.publisher.PublishModuleEvent("deleted", id, "")
	c.JSON(http.StatusOK, gin.H{"detail": fmt.Sprintf("Module %d deleted", id)})
}

type simulateRequest struct {
	ModuleID                   int      `json:"module_id"`
	UseEnvironmentalConditions bool     `json:"use_environmental_conditions"`
	Temperature                *float64 `json:"temperature"`
	Irradiance                 *float64 `json:"irradiance"`
}

type simulateResponse struct {
	ModuleID    int          `json:"module_id"`
	Mode        string       `json:"mode"`
	Irradiance  float64      `json:"irradiance"`
	Temperature float64      `json:"temperature"`
	IVCurve     [][2]float64 `json:"iv_curve"`
	PVCurve     [][2]float64 `json:"pv_curve"`
	Summary     sdm.Summary  `json:"summary"`
}

func (s *Server) simulateHandler(c *gin.Context) {
	var req simulateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
		return
	}
	if req.ModuleID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "module_id must be a positive integer"})
		return
	}

	module, err := s.db.GetModule(uint(req.ModuleID))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"detail": "Module not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"detail": err.Error()})
		return
	}

	// Standard test conditions unless the caller supplied overrides
	irradiance, temperature := 1000.0, 25.0
	mode := "default"
	if req.UseEnvironmentalConditions {
		mode = "environment"
		if req.Irradiance != nil {
			irradiance = *req.Irradiance
		}
		if req.Temperature != nil {
			temperature = *req.Temperature
		}
	}

	device := sdm.Device{
		Voc:      module.Voc,
		Isc:      module.Isc,
		Vmp:      module.Vmp,
		Imp:      module.Imp,
		Ns:       module.Ns,
		Kv:       module.Kv,
		Ki:       module.Ki,
		GammaPmp: module.GammaPmp,
		Celltype: module.Celltype,
	}

	curve, summary, err := sdm.Simulate(device, irradiance, temperature, curvePoints)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "SDM calculation failed: " + err.Error()})
		return
	}

	resp := simulateResponse{
		ModuleID:    req.ModuleID,
		Mode:        mode,
		Irradiance:  irradiance,
		Temperature: temperature,
		IVCurve:     make([][2]float64, len(curve.Voltages)),
		PVCurve:     make([][2]float64, len(curve.Voltages)),
		Summary:     summary,
	}
	for i := range curve.Voltages {
		resp.IVCurve[i] = [2]float64{curve.Voltages[i], curve.Currents[i]}
		resp.PVCurve[i] = [2]float64{curve.Voltages[i], curve.Powers[i]}
	}

	s.publisher.PublishSimulation(req.ModuleID, mode, irradiance, temperature, summary.Pmp)
	c.JSON(http.StatusOK, resp)
}

func (s *Server) liveConditionsHandler(c *gin.Context) {
	if s.conditions == nil {
		c.JSON(http.StatusNotFound, gin.H{"detail": "Live conditions are not configured"})
		return
	}

	s.conditionsMu.Lock()
	defer s.conditionsMu.Unlock()

	now := time.Now()
	if s.lastCond != nil && now.Sub(s.lastCondAt) < conditionsCacheTTL {
		c.JSON(http.StatusOK, s.lastCond)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), conditionsTimeout)
	defer cancel()

	data, err := s.conditions.Get(ctx)
	if err != nil {
		log.Printf("Live conditions fetch failed: %v", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"detail": "Live conditions unavailable"})
		return
	}

	s.lastCond = data
	s.lastCondAt = now
	c.JSON(http.StatusOK, data)
}

func (s *Server) moduleID(c *gin.Context) (uint, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		c.JSON(http.StatusNotFound, gin.H{"detail": "Module not found"})
		return 0, false
	}
	return uint(id), true
}
