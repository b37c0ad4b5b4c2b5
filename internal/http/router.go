package httpapi

import (
	"net/http"
	"strings"

	"go.uber.org/zap"
)

// Router 使用标准库 http.ServeMux（避免引入第三方路由依赖）
type Router struct {
	mux    *http.ServeMux
	logger *zap.Logger
}

func NewRouter(logger *zap.Logger) *Router {
	return &Router{
		mux:    http.NewServeMux(),
		logger: logger,
	}
}

func (r *Router) Handle(pattern string, h http.HandlerFunc) {
	r.mux.HandleFunc(pattern, h)
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// RegisterAssignmentRoutes 注册调度相关路由
func (r *Router) RegisterAssignmentRoutes(h *AssignmentHandler) {
	// collection: list + propose
	r.Handle("/survey/api/v1/assignments", func(w http.ResponseWriter, req *http.Request) {
		switch req.Method {
		case http.MethodGet:
			h.ListAssignments(w, req)
		case http.MethodPost:
			h.ProposeAssignment(w, req)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})

	// dry-run conflict check
	r.Handle("/survey/api/v1/assignments/conflicts", func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.FindConflicts(w, req)
	})

	// item routes: get / extend / revoke / delete
	r.Handle("/survey/api/v1/assignments/", h.ServeAssignmentItem)

	// survey history
	r.Handle("/survey/api/v1/surveys/", func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		rest := strings.TrimPrefix(req.URL.Path, "/survey/api/v1/surveys/")
		surveyID := strings.TrimSuffix(rest, "/assignments")
		if surveyID == "" || surveyID == rest || strings.Contains(surveyID, "/") {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		h.AssignmentsForSurvey(w, req, surveyID)
	})

	// assignable device picker
	r.Handle("/survey/api/v1/devices/available", func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.AvailableDevices(w, req)
	})
}
