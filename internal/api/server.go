// Package api serves a read-only HTTP view of a toolpath package: the
// toolpath resource, per-layer summaries and segment coordinates.
package api

import (
	"fmt"
	"net/http"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/labstack/echo/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cjgriscom/lib3mf/internal/logger"
	"github.com/cjgriscom/lib3mf/pkg/attachment"
	"github.com/cjgriscom/lib3mf/pkg/toolpath"
)

const DefaultLayerCache = 8

type Config struct {
	// LayerCache is the number of parsed layers kept in memory.
	LayerCache int
	// CacheChunks is passed to binary stream readers.
	CacheChunks int
	Logger      logger.Logger
}

type Server struct {
	store  attachment.Store
	tp     *toolpath.Toolpath
	log    logger.Logger
	opts   toolpath.ReadOptions
	layers *lru.Cache[int, *toolpath.ReadData]
}

func NewServer(store attachment.Store, tp *toolpath.Toolpath, cfg Config) (*Server, error) {
	if store == nil || tp == nil {
		return nil, fmt.Errorf("api: store and toolpath are required")
	}
	if cfg.LayerCache <= 0 {
		cfg.LayerCache = DefaultLayerCache
	}
	log := cfg.Logger
	if log == nil {
		log = logger.Discard()
	}
	layers, err := lru.New[int, *toolpath.ReadData](cfg.LayerCache)
	if err != nil {
		return nil, err
	}
	return &Server{
		store:  store,
		tp:     tp,
		log:    log,
		opts:   toolpath.ReadOptions{Logger: log, CacheChunks: cfg.CacheChunks},
		layers: layers,
	}, nil
}

func (s *Server) Register(e *echo.Echo) {
	e.GET("/v1/toolpath", s.handleToolpath)
	e.GET("/v1/layers/:index", s.handleLayer)
	e.GET("/v1/layers/:index/segments/:segment", s.handleSegment)
	e.GET("/metrics", s.handleMetrics)
}

// layer returns the parsed layer i. Parsed layers are immutable and shared
// between requests.
func (s *Server) layer(i int) (*toolpath.ReadData, error) {
	if d, ok := s.layers.Get(i); ok {
		return d, nil
	}
	d, err := s.tp.ReadLayer(i, s.store, s.opts)
	if err != nil {
		return nil, err
	}
	s.layers.Add(i, d)
	s.log.Debug("parsed layer", "index", i, "segments", d.SegmentCount())
	return d, nil
}

func (s *Server) handleToolpath(c *echo.Context) error {
	resp := ToolpathResponse{
		UnitFactor: s.tp.Units(),
		Profiles:   make([]ProfileInfo, 0, s.tp.ProfileCount()),
		Layers:     make([]LayerInfo, 0, s.tp.LayerCount()),
	}
	for i := range s.tp.ProfileCount() {
		p, err := s.tp.Profile(i)
		if err != nil {
			return writeReadError(c, err)
		}
		resp.Profiles = append(resp.Profiles, profileInfo(p))
	}
	for i := range s.tp.LayerCount() {
		l, err := s.tp.Layer(i)
		if err != nil {
			return writeReadError(c, err)
		}
		resp.Layers = append(resp.Layers, LayerInfo{Index: i, Path: l.Path, ZMax: l.ZMax})
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleLayer(c *echo.Context) error {
	i, ok := indexParam(c, "index")
	if !ok {
		return writeBadRequest(c, "layer index must be a non-negative integer", "index")
	}
	l, err := s.tp.Layer(i)
	if err != nil {
		return writeReadError(c, err)
	}
	d, err := s.layer(i)
	if err != nil {
		return writeReadError(c, err)
	}

	resp := LayerResponse{
		LayerInfo: LayerInfo{Index: i, Path: l.Path, ZMax: l.ZMax},
		Segments:  make([]SegmentInfo, 0, d.SegmentCount()),
		ByType:    make(map[string]int),
	}
	for j := range d.SegmentCount() {
		info, err := segmentInfo(d, j)
		if err != nil {
			return writeReadError(c, err)
		}
		resp.PointCount += info.PointCount
		resp.ByType[info.Type]++
		resp.Segments = append(resp.Segments, info)
	}
	for _, w := range d.Warnings() {
		resp.Warnings = append(resp.Warnings, w.String())
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleSegment(c *echo.Context) error {
	i, ok := indexParam(c, "index")
	if !ok {
		return writeBadRequest(c, "layer index must be a non-negative integer", "index")
	}
	j, ok := indexParam(c, "segment")
	if !ok {
		return writeBadRequest(c, "segment index must be a non-negative integer", "segment")
	}
	units := c.QueryParam("units")
	switch units {
	case "":
		units = "layer"
	case "layer", "model":
	default:
		return writeBadRequest(c, "units must be layer or model", "units")
	}

	d, err := s.layer(i)
	if err != nil {
		return writeReadError(c, err)
	}
	info, err := segmentInfo(d, j)
	if err != nil {
		return writeReadError(c, err)
	}
	pts, err := d.SegmentPoints(j)
	if err != nil {
		return writeReadError(c, err)
	}

	scale := 1.0
	if units == "model" {
		scale = d.Units()
	}
	resp := SegmentResponse{SegmentInfo: info, Units: units, Points: make([][2]float64, len(pts))}
	for k, p := range pts {
		x, y := p.Scale(scale)
		resp.Points[k] = [2]float64{x, y}
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleMetrics(c *echo.Context) error {
	promhttp.Handler().ServeHTTP(c.Response(), c.Request())
	return nil
}
