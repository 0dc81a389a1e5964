package navigation

import (
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/medinor/dashboard/internal/observability"
	"github.com/medinor/dashboard/model"
)

// Provider serves the current navigation definition. Reads are lock-free;
// Reload swaps the definition atomically and keeps the previous one when
// the new file is invalid.
type Provider struct {
	path    string
	logger  *zap.Logger
	metrics *observability.Metrics

	def atomic.Pointer[Definition]
}

// NewProvider loads path (the built-in tree when empty).
func NewProvider(path string, logger *zap.Logger, metrics *observability.Metrics) (*Provider, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Provider{path: path, logger: logger, metrics: metrics}
	if err := p.Reload(); err != nil {
		return nil, err
	}
	return p, nil
}

// Reload re-reads the definition file.
func (p *Provider) Reload() error {
	def, err := LoadFile(p.path)
	if err != nil {
		p.metrics.RecordNavigationReload("error")
		p.logger.Error("navigation: load failed", zap.String("source", p.path), zap.Error(err))
		return err
	}
	if prev := p.def.Load(); prev != nil && prev.Checksum == def.Checksum {
		p.metrics.RecordNavigationReload("unchanged")
		return nil
	}
	p.def.Store(&def)
	p.metrics.RecordNavigationReload("ok")
	p.logger.Info("navigation: loaded",
		zap.String("source", def.SourceFile),
		zap.String("checksum", def.Checksum),
	)
	return nil
}

// Loaded reports whether a definition is available.
func (p *Provider) Loaded() bool { return p.def.Load() != nil }

// Checksum identifies the current definition.
func (p *Provider) Checksum() string {
	if def := p.def.Load(); def != nil {
		return def.Checksum
	}
	return ""
}

// Tree returns the navigation visible to role.
func (p *Provider) Tree(role string) model.NavigationTree {
	def := p.def.Load()
	if def == nil {
		return model.NavigationTree{Items: []model.NavigationNode{}}
	}
	return Filter(def.Tree, role)
}
