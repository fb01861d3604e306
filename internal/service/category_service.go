package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/user/catadmin/internal/metrics"
	"github.com/user/catadmin/internal/model"
	"github.com/user/catadmin/internal/utils"
)

// CategoryAPI 远程分类服务
type CategoryAPI interface {
	GetCategoriesByPage(ctx context.Context, page, pageSize int) (*model.CategoryPage, error)
	GetCategory(ctx context.Context, id string) (*model.Category, error)
	CreateCategory(ctx context.Context, fields model.CategoryFields) (*model.Category, error)
	UpdateCategory(ctx context.Context, id string, fields model.CategoryFields) (*model.Category, error)
	DeleteCategory(ctx context.Context, id string) error
}

// APIError 远程调用失败，Message 原样展示给用户
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return e.Message
}

// IsNotFound 判断是否 404
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// CategoryServiceOptions 服务选项
type CategoryServiceOptions struct {
	BaseURL  string
	Timeout  time.Duration
	CacheTTL time.Duration
	Tokens   *TokenSource // 为 nil 时不带 Authorization
}

// CategoryService 通过 HTTP 访问远程分类 API
type CategoryService struct {
	baseURL string
	client  *utils.HTTPClient
	tokens  *TokenSource
	pages   *utils.TTLCache[model.CategoryPage]
	lookup  *cache.Cache
	sf      singleflight.Group
	gen     atomic.Uint64 // 每次 Invalidate 递增
	fillMu  sync.Mutex    // 保证写缓存与 Invalidate 互斥
}

// NewCategoryService 创建分类服务
func NewCategoryService(opts CategoryServiceOptions) *CategoryService {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = time.Minute
	}
	return &CategoryService{
		baseURL: opts.BaseURL,
		client:  utils.NewHTTPClient(opts.Timeout),
		tokens:  opts.Tokens,
		pages:   utils.NewTTLCache[model.CategoryPage](256, opts.CacheTTL),
		lookup:  utils.NewLookupCache(opts.CacheTTL),
	}
}

// GetCategoriesByPage 获取一页分类（优先缓存）
func (s *CategoryService) GetCategoriesByPage(ctx context.Context, page, pageSize int) (*model.CategoryPage, error) {
	key := pageKey(page, pageSize)
	if cached, ok := s.pages.Get(key); ok {
		metrics.CategoryPageCacheHits.Inc()
		return &cached, nil
	}

	// 使用 singleflight 避免并发请求同一页；key 带上缓存代数，失效后的请求不会复用旧的请求
	gen := s.gen.Load()
	flightKey := key + ":" + strconv.FormatUint(gen, 10)
	// 共享请求不随单个调用方取消，每个调用方只等待自己的 ctx
	fetchCtx := context.WithoutCancel(ctx)
	ch := s.sf.DoChan(flightKey, func() (interface{}, error) {
		q := url.Values{}
		q.Set("page", strconv.Itoa(page))
		q.Set("pageSize", strconv.Itoa(pageSize))

		var result model.CategoryPage
		if err := s.call(fetchCtx, "list", http.MethodGet, "/categories?"+q.Encode(), nil, &result); err != nil {
			return nil, err
		}
		if result.Categories == nil {
			result.Categories = []model.Category{}
		}

		// 请求期间发生过变更则不写缓存
		s.fillMu.Lock()
		if s.gen.Load() == gen {
			s.pages.Set(key, result)
			for _, c := range result.Categories {
				s.lookup.SetDefault(c.ID, c)
			}
		}
		s.fillMu.Unlock()
		return result, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		result := res.Val.(model.CategoryPage)
		return &result, nil
	}
}

// GetCategory 按 ID 获取分类，列表页已加载过的直接取缓存
func (s *CategoryService) GetCategory(ctx context.Context, id string) (*model.Category, error) {
	if v, ok := s.lookup.Get(id); ok {
		c := v.(model.Category)
		return &c, nil
	}

	var c model.Category
	if err := s.call(ctx, "get", http.MethodGet, "/categories/"+url.PathEscape(id), nil, &c); err != nil {
		return nil, err
	}
	if c.ID == "" {
		c.ID = id
	}
	s.lookup.SetDefault(c.ID, c)
	return &c, nil
}

// CreateCategory 创建分类
func (s *CategoryService) CreateCategory(ctx context.Context, fields model.CategoryFields) (*model.Category, error) {
	var c model.Category
	if err := s.call(ctx, "create", http.MethodPost, "/categories", fields, &c); err != nil {
		return nil, err
	}
	s.Invalidate()
	log.Info().Str("categoryID", c.ID).Str("name", fields.Name).Msg("分类已创建")
	return &c, nil
}

// UpdateCategory 更新分类
func (s *CategoryService) UpdateCategory(ctx context.Context, id string, fields model.CategoryFields) (*model.Category, error) {
	var c model.Category
	if err := s.call(ctx, "update", http.MethodPut, "/categories/"+url.PathEscape(id), fields, &c); err != nil {
		return nil, err
	}
	if c.ID == "" {
		c = model.Category{ID: id, Name: fields.Name}
	}
	s.Invalidate()
	log.Info().Str("categoryID", id).Str("name", fields.Name).Msg("分类已更新")
	return &c, nil
}

// DeleteCategory 删除分类
func (s *CategoryService) DeleteCategory(ctx context.Context, id string) error {
	if err := s.call(ctx, "delete", http.MethodDelete, "/categories/"+url.PathEscape(id), nil, nil); err != nil {
		return err
	}
	s.Invalidate()
	log.Info().Str("categoryID", id).Msg("分类已删除")
	return nil
}

// Invalidate 清空本地缓存，下次读取重新请求远程 API
func (s *CategoryService) Invalidate() {
	s.fillMu.Lock()
	defer s.fillMu.Unlock()
	s.gen.Add(1)
	log.Debug().Int("pages", s.pages.Len()).Int("lookups", s.lookup.ItemCount()).Msg("清空分类缓存")
	s.pages.Clear()
	s.lookup.Flush()
}

// call 发送请求并解析响应，非 2xx 转换为 *APIError
func (s *CategoryService) call(ctx context.Context, op, method, path string, body, target interface{}) (err error) {
	start := time.Now()
	defer func() {
		outcome := "success"
		if err != nil {
			outcome = "error"
		}
		metrics.CategoryAPIRequestsTotal.WithLabelValues(op, outcome).Inc()
		metrics.CategoryAPIRequestDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	}()

	header := http.Header{}
	if s.tokens != nil {
		token, err := s.tokens.Token()
		if err != nil {
			return fmt.Errorf("签发 API Token 失败: %w", err)
		}
		header.Set("Authorization", "Bearer "+token)
	}

	resp, err := s.client.Do(ctx, method, s.baseURL+path, body, header)
	if err != nil {
		log.Warn().Err(err).Str("op", op).Str("path", path).Msg("远程分类 API 请求失败")
		return err
	}
	defer resp.Body.Close()

	data, err := utils.ReadBody(resp)
	if err != nil {
		return err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: errorMessage(resp.StatusCode, data)}
		log.Warn().Int("status", resp.StatusCode).Str("op", op).Str("path", path).Str("message", apiErr.Message).Msg("远程分类 API 返回错误")
		return apiErr
	}

	log.Debug().Int("status", resp.StatusCode).Str("op", op).Str("path", path).Dur("latency", time.Since(start)).Msg("远程分类 API 请求完成")
	return utils.DecodeJSON(data, target)
}

// errorMessage 优先取响应体中的 message/error 字段
func errorMessage(status int, body []byte) string {
	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if utils.DecodeJSON(body, &payload) == nil {
		if payload.Message != "" {
			return payload.Message
		}
		if payload.Error != "" {
			return payload.Error
		}
	}
	if text := http.StatusText(status); text != "" {
		return text
	}
	return fmt.Sprintf("HTTP %d", status)
}

func pageKey(page, pageSize int) string {
	return fmt.Sprintf("categories:%d:%d", page, pageSize)
}
