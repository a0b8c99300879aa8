package service

import (
	"context"

	"go.uber.org/zap"

	"ghostmail/internal/domain"
)

// DomainRegistry 公共域名注册表
type DomainRegistry interface {
	Submit(ctx context.Context, name, submitterIP string) error
	Moderate(name string, state domain.DomainState) error
	List(state domain.DomainState) []domain.Domain
}

// DomainService 公共域名提交与审核
type DomainService struct {
	registry DomainRegistry
	logger   *zap.Logger
}

// NewDomainService 创建域名服务。
func NewDomainService(reg DomainRegistry, logger *zap.Logger) *DomainService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DomainService{registry: reg, logger: logger}
}

// Submit 提交公共域名。违禁与重复提交同样返回 nil。
func (s *DomainService) Submit(ctx context.Context, name, submitterIP string) error {
	return s.registry.Submit(ctx, name, submitterIP)
}

// Moderate 审核公共域名
func (s *DomainService) Moderate(name string, state domain.DomainState) error {
	if err := s.registry.Moderate(name, state); err != nil {
		s.logger.Debug("moderation rejected",
			zap.String("domain", name), zap.String("state", string(state)), zap.Error(err))
		return err
	}
	return nil
}

// List 列出公共域名，state 为空时返回全部
func (s *DomainService) List(state domain.DomainState) []domain.Domain {
	return s.registry.List(state)
}
