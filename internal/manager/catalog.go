package manager

import (
	"McpAgent/internal/models"

	"github.com/cockroachdb/errors"
)

// CatalogSource 构建目录所需的单个服务器视图
type CatalogSource struct {
	Server string
	Tools  []models.ToolDescriptor
}

// ShadowedTool 因重名被忽略的工具
type ShadowedTool struct {
	Name   string `json:"name"`
	Server string `json:"server"`
	Owner  string `json:"owner"`
}

// Catalog 已连接服务器工具的扁平视图，构建后不可修改
type Catalog struct {
	tools    []models.ToolDescriptor
	owners   map[string]string
	shadowed []ShadowedTool
}

// EmptyCatalog 空目录
func EmptyCatalog() *Catalog {
	return &Catalog{owners: map[string]string{}}
}

// BuildCatalog 按 sources 的顺序拼接工具列表。
// 重名工具以先注册的服务器为准，后者记入 Shadowed。
func BuildCatalog(sources []CatalogSource) *Catalog {
	c := EmptyCatalog()
	for _, src := range sources {
		for _, tool := range src.Tools {
			if owner, exists := c.owners[tool.Name]; exists {
				c.shadowed = append(c.shadowed, ShadowedTool{
					Name:   tool.Name,
					Server: src.Server,
					Owner:  owner,
				})
				continue
			}
			tool.OwnerServer = src.Server
			c.owners[tool.Name] = src.Server
			c.tools = append(c.tools, tool)
		}
	}
	return c
}

// FlatToolList 返回工具列表的副本
func (c *Catalog) FlatToolList() []models.ToolDescriptor {
	return append([]models.ToolDescriptor(nil), c.tools...)
}

// ResolveOwner 返回工具所属的服务器
func (c *Catalog) ResolveOwner(toolName string) (string, error) {
	owner, ok := c.owners[toolName]
	if !ok {
		return "", errors.Mark(errors.Newf("tool %s not found in any connected server", toolName), models.ErrToolNotFound)
	}
	return owner, nil
}

// Len 工具数量
func (c *Catalog) Len() int {
	return len(c.tools)
}

// Names 按顺序返回全部工具名
func (c *Catalog) Names() []string {
	names := make([]string, len(c.tools))
	for i, t := range c.tools {
		names[i] = t.Name
	}
	return names
}

// Shadowed 返回因重名被忽略的工具
func (c *Catalog) Shadowed() []ShadowedTool {
	return append([]ShadowedTool(nil), c.shadowed...)
}

// ShadowedBy 返回指定服务器被忽略的工具名
func (c *Catalog) ShadowedBy(server string) []string {
	var names []string
	for _, s := range c.shadowed {
		if s.Server == server {
			names = append(names, s.Name)
		}
	}
	return names
}
