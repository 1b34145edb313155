package querycache

import (
	"context"
)

type bypassContextKey struct{}

type purgeTagsContextKey struct{}

// WithoutCache marks ctx so reads skip both the shared store and the request
// memo. Writes still purge.
func WithoutCache(ctx context.Context) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, bypassContextKey{}, true)
}

func bypassed(ctx context.Context) bool {
	if ctx == nil {
		return false
	}
	v, _ := ctx.Value(bypassContextKey{}).(bool)
	return v
}

// WithPurgeTags attaches extra tags that the next Invalidate under ctx purges
// along with the entity's own.
func WithPurgeTags(ctx context.Context, tags ...string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if len(tags) == 0 {
		return ctx
	}

	existing := purgeTagsFromContext(ctx)
	combined := dedupeTags(append(existing, tags...))
	if len(combined) == 0 {
		return ctx
	}

	return context.WithValue(ctx, purgeTagsContextKey{}, combined)
}

func purgeTagsFromContext(ctx context.Context) []string {
	if ctx == nil {
		return nil
	}
	if tags, ok := ctx.Value(purgeTagsContextKey{}).([]string); ok {
		return append([]string(nil), tags...)
	}
	return nil
}

// dedupeTags drops blanks and repeats, keeping first-seen order.
func dedupeTags(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(tags))
	out := tags[:0:0]
	for _, tag := range tags {
		if tag == "" {
			continue
		}
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	return out
}
