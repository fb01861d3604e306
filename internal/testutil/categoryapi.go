// Package testutil 提供测试用的远程分类 API 替身
package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/user/catadmin/internal/model"
)

// CategoryAPI 内存版远程分类 API
type CategoryAPI struct {
	Server *httptest.Server

	mu         sync.Mutex
	categories map[string]model.Category
	nextID     int
	calls      map[string]int
	failures   map[string]failure
	delays     map[string]time.Duration
	lastAuth   string
}

type failure struct {
	status  int
	message string
}

// NewCategoryAPI 启动替身服务，调用方负责 Close
func NewCategoryAPI(names ...string) *CategoryAPI {
	api := &CategoryAPI{
		categories: map[string]model.Category{},
		calls:      map[string]int{},
		failures:   map[string]failure{},
		delays:     map[string]time.Duration{},
	}
	for _, name := range names {
		api.add(name)
	}
	api.Server = httptest.NewServer(http.HandlerFunc(api.serve))
	return api
}

// URL 基础地址
func (a *CategoryAPI) URL() string {
	return a.Server.URL
}

// Close 关闭服务
func (a *CategoryAPI) Close() {
	a.Server.Close()
}

// FailNext 让下一次 op 调用返回指定错误；message 为空时返回非 JSON 响应体
func (a *CategoryAPI) FailNext(op string, status int, message string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.failures[op] = failure{status: status, message: message}
}

// Delay op 的响应在生成后延迟 d 再返回，数据以收到请求时为准；d 为 0 时取消
func (a *CategoryAPI) Delay(op string, d time.Duration) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.delays[op] = d
}

// Calls op 被调用次数（list/get/create/update/delete）
func (a *CategoryAPI) Calls(op string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls[op]
}

// LastAuthorization 最近一次请求的 Authorization 头
func (a *CategoryAPI) LastAuthorization() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastAuth
}

// Get 按 ID 查看当前数据
func (a *CategoryAPI) Get(id string) (model.Category, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	c, ok := a.categories[id]
	return c, ok
}

// Len 当前分类数
func (a *CategoryAPI) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.categories)
}

func (a *CategoryAPI) add(name string) model.Category {
	a.nextID++
	c := model.Category{ID: strconv.Itoa(a.nextID), Name: name}
	a.categories[c.ID] = c
	return c
}

func (a *CategoryAPI) serve(w http.ResponseWriter, r *http.Request) {
	rec := httptest.NewRecorder()
	op := a.handle(rec, r)

	a.mu.Lock()
	delay := a.delays[op]
	a.mu.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}

	for k, v := range rec.Header() {
		w.Header()[k] = v
	}
	w.WriteHeader(rec.Code)
	_, _ = w.Write(rec.Body.Bytes())
}

// handle 在锁内生成响应，返回 op
func (a *CategoryAPI) handle(w http.ResponseWriter, r *http.Request) (op string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.lastAuth = r.Header.Get("Authorization")
	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/categories"), "/")

	switch {
	case r.Method == http.MethodGet && id == "":
		op = "list"
	case r.Method == http.MethodGet:
		op = "get"
	case r.Method == http.MethodPost && id == "":
		op = "create"
	case r.Method == http.MethodPut && id != "":
		op = "update"
	case r.Method == http.MethodDelete && id != "":
		op = "delete"
	default:
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"message": "method not allowed"})
		return
	}
	a.calls[op]++

	if f, ok := a.failures[op]; ok {
		delete(a.failures, op)
		if f.message == "" {
			w.WriteHeader(f.status)
			_, _ = w.Write([]byte("<html>upstream down</html>"))
			return
		}
		writeJSON(w, f.status, map[string]string{"message": f.message})
		return
	}

	switch op {
	case "list":
		a.list(w, r)
	case "get":
		c, ok := a.categories[id]
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]string{"message": "Categoria não encontrada"})
			return
		}
		writeJSON(w, http.StatusOK, c)
	case "create":
		var fields model.CategoryFields
		if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"message": err.Error()})
			return
		}
		writeJSON(w, http.StatusCreated, a.add(fields.Name))
	case "update":
		if _, ok := a.categories[id]; !ok {
			writeJSON(w, http.StatusNotFound, map[string]string{"message": "Categoria não encontrada"})
			return
		}
		var fields model.CategoryFields
		if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"message": err.Error()})
			return
		}
		c := model.Category{ID: id, Name: fields.Name}
		a.categories[id] = c
		writeJSON(w, http.StatusOK, c)
	case "delete":
		if _, ok := a.categories[id]; !ok {
			writeJSON(w, http.StatusNotFound, map[string]string{"message": "Categoria não encontrada"})
			return
		}
		delete(a.categories, id)
		w.WriteHeader(http.StatusNoContent)
	}
	return
}

func (a *CategoryAPI) list(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	size, _ := strconv.Atoi(r.URL.Query().Get("pageSize"))
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = 10
	}

	all := make([]model.Category, 0, len(a.categories))
	for _, c := range a.categories {
		all = append(all, c)
	}
	sort.Slice(all, func(i, j int) bool {
		ni, _ := strconv.Atoi(all[i].ID)
		nj, _ := strconv.Atoi(all[j].ID)
		return ni < nj
	})

	totalPages := (len(all) + size - 1) / size
	start := (page - 1) * size
	items := []model.Category{}
	if start < len(all) {
		end := start + size
		if end > len(all) {
			end = len(all)
		}
		items = all[start:end]
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"categories": items,
		"totalPages": totalPages,
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
