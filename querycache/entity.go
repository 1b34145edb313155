package querycache

import (
	"reflect"
	"sort"
	"strings"

	"github.com/jinzhu/inflection"
	"github.com/puzpuzpuz/xsync/v3"
)

// CacheableConfig declares how results involving an entity are cached.
type CacheableConfig struct {
	// Enabled opts the entity into caching. The zero value disables it.
	Enabled bool
	// TTL of cached results. Zero inherits Config.DefaultTTL.
	TTL TTL
	// Tag groups every cached result involving the entity. Writes purge it.
	Tag string
	// Invalidates lists further tags purged whenever the entity is written,
	// for results of other entities that read this one.
	Invalidates []string
}

// Cacheable is implemented by entities that opt into result caching.
// A nil Cacheable is treated as disabled.
type Cacheable interface {
	CacheConfig() CacheableConfig
}

type definedEntity struct {
	cfg CacheableConfig
}

func (d definedEntity) CacheConfig() CacheableConfig {
	return d.cfg
}

// Define returns a Cacheable for tables that have no Go type of their own.
func Define(cfg CacheableConfig) Cacheable {
	cfg.Invalidates = append([]string(nil), cfg.Invalidates...)
	return definedEntity{cfg: cfg}
}

// TagFor returns the default tag for T, the snake_case plural of its type
// name: Post becomes posts, BlogPost becomes blog_posts.
func TagFor[T any]() string {
	rt := reflect.TypeOf((*T)(nil)).Elem()
	for rt.Kind() == reflect.Ptr {
		rt = rt.Elem()
	}
	name := toSnake(rt.Name())
	if name == "" {
		return ""
	}
	return inflection.Plural(name)
}

// EntityFor returns the cache configuration declared by T, or nil when
// neither T nor *T implements Cacheable. An empty tag is filled with
// TagFor[T].
func EntityFor[T any]() Cacheable {
	rt := reflect.TypeOf((*T)(nil)).Elem()
	base := rt
	for base.Kind() == reflect.Ptr {
		base = base.Elem()
	}

	// the method set of *base covers value and pointer receivers
	c, ok := reflect.New(base).Interface().(Cacheable)
	if !ok {
		return nil
	}

	cfg := c.CacheConfig()
	if cfg.Tag == "" {
		cfg.Tag = TagFor[T]()
	}
	return Define(cfg)
}

// Registry maps entity names to their cache configuration. It is safe for
// concurrent use.
type Registry struct {
	entities *xsync.MapOf[string, Cacheable]
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{entities: xsync.NewMapOf[string, Cacheable]()}
}

// Register stores entity under name, replacing any previous entry. A nil
// entity removes the name.
func (r *Registry) Register(name string, entity Cacheable) {
	name = normalizeName(name)
	if entity == nil {
		r.entities.Delete(name)
		return
	}
	r.entities.Store(name, entity)
}

// Lookup returns the entity registered under name, or nil.
func (r *Registry) Lookup(name string) Cacheable {
	if r == nil {
		return nil
	}
	entity, _ := r.entities.Load(normalizeName(name))
	return entity
}

// Tags returns the sorted tags of every registered entity.
func (r *Registry) Tags() []string {
	seen := make(map[string]struct{})
	r.entities.Range(func(_ string, entity Cacheable) bool {
		if tag := entity.CacheConfig().Tag; tag != "" {
			seen[tag] = struct{}{}
		}
		return true
	})
	tags := make([]string, 0, len(seen))
	for tag := range seen {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
