package versions

import (
	"log/slog"

	"voltgrid/internal/platform/config"
	"voltgrid/internal/versions/handler"
	"voltgrid/internal/versions/models"
	"voltgrid/internal/versions/service"
)

type Platform = models.Platform

type Negotiator = service.Negotiator

type Handler = handler.Handler

// PlatformFromParty builds the local advertisement from the party file.
func PlatformFromParty(publicURL string, pf *config.PartyFile) (*Platform, error) {
	defs := make([]models.VersionDefinition, 0, len(pf.Versions))
	for _, v := range pf.Versions {
		eps := make([]models.EndpointDefinition, 0, len(v.Endpoints))
		for _, e := range v.Endpoints {
			eps = append(eps, models.EndpointDefinition{Identifier: e.Identifier, Role: e.Role, URL: e.URL})
		}
		defs = append(defs, models.VersionDefinition{Version: v.Version, Endpoints: eps})
	}
	return models.NewPlatform(publicURL, defs)
}

func NewNegotiator(p *Platform, remote service.RemoteVersions, opts ...service.Option) *Negotiator {
	return service.New(p, remote, opts...)
}

func NewHandler(p *Platform, logger *slog.Logger) *Handler {
	return handler.New(p, logger)
}
