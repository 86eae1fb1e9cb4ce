// Package server exposes a read-only HTTP view of a bundle cache.
package server

import (
	"sort"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/skyline93/bundlecache/internal/cache"
	"github.com/skyline93/bundlecache/internal/manifest"
)

// AppOptions configures the HTTP view.
type AppOptions struct {
	Cache *cache.Cache

	// Manifest resolves GUIDs to bundles for content requests. Without it
	// only the listing is served.
	Manifest *manifest.Manifest
}

const headerRequestID = "X-Request-ID"

// BundleInfo is one entry of the bundle listing.
type BundleInfo struct {
	GUID string `json:"guid"`
	Size int64  `json:"size"`
	CRC  string `json:"crc"`
}

// NewApp builds the fiber application.
func NewApp(opts AppOptions) (*fiber.App, error) {
	if opts.Cache == nil {
		return nil, errors.New("cache is required")
	}

	app := fiber.New(fiber.Config{
		CaseSensitive: true,
	})

	app.Use(recover.New())
	app.Use(func(c fiber.Ctx) error {
		c.Set(headerRequestID, uuid.NewString())
		return c.Next()
	})

	h := &handler{cache: opts.Cache, manifest: opts.Manifest}
	app.Get("/bundles", h.list)
	app.Get("/bundles/:guid", h.get)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	return app, nil
}

type handler struct {
	cache    *cache.Cache
	manifest *manifest.Manifest
}

func (h *handler) list(c fiber.Ctx) error {
	guids := h.cache.CachedGUIDs()
	sort.Strings(guids)

	infos := make([]BundleInfo, 0, len(guids))
	for _, guid := range guids {
		rec, ok := h.cache.Records().Get(guid)
		if !ok {
			continue
		}
		infos = append(infos, BundleInfo{GUID: guid, Size: rec.DataFileSize, CRC: rec.DataFileCRC})
	}
	return c.JSON(infos)
}

func (h *handler) get(c fiber.Ctx) error {
	guid := c.Params("guid")
	if h.manifest == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "no_manifest"})
	}

	b, ok := h.manifest.Bundle(guid)
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "bundle_unknown"})
	}

	data, err := h.cache.ReadBundleData(b)
	if errors.Is(err, cache.ErrNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "bundle_not_cached"})
	}
	if err != nil {
		log.WithFields(log.Fields{
			"guid":       guid,
			"request_id": c.GetRespHeader(headerRequestID),
		}).Warnf("read bundle failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "read_failed"})
	}

	c.Set(fiber.HeaderContentType, fiber.MIMEOctetStream)
	return c.Send(data)
}
