package models

// BackendPagination 与前端分页组件约定的分页结构
type BackendPagination struct {
	Size      int    `json:"size"`
	Page      int    `json:"page"`
	Count     int    `json:"count"`
	Sort      string `json:"sort"`
	Direction int    `json:"direction"`
}
