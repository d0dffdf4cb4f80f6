package s3cache

import (
	"strconv"

	"github.com/dustin/go-humanize"
)

// Describer receives a human-readable summary of a Cache configuration.
type Describer interface {
	Type(name string)
	Config(name, value string)
}

// Describe reports the cache configuration to d. The type and region come
// from the client when it reports them. Empty values are skipped.
func (c *Cache) Describe(d Describer) {
	typ := "Object Store"
	if t, ok := c.client.(interface{ Type() string }); ok && t.Type() != "" {
		typ = t.Type()
	}
	d.Type(typ)
	config := func(name, value string) {
		if value != "" {
			d.Config(name, value)
		}
	}
	if r, ok := c.client.(interface{ Region() string }); ok {
		config("Region", r.Region())
	}
	config("Bucket", c.bucket)
	config("Reduced Redundancy", strconv.FormatBool(c.storageClass == StorageClassReducedRedundancy))
	config("Path", c.prefix)
	if e, ok := c.client.(interface{ Endpoint() string }); ok {
		config("Endpoint", e.Endpoint())
	}
	config("Strategy", c.strategy.Name())
	config("Chunk Size", humanize.Bytes(uint64(c.chunkSize)))
	if c.maxEntrySize > 0 {
		config("Max Entry Size", humanize.Bytes(uint64(c.maxEntrySize)))
	}
}
