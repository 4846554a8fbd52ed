package service

import (
	"context"
	"log/slog"
	"slices"

	"voltgrid/internal/versions/models"
	"voltgrid/pkg/domain"
	dErrors "voltgrid/pkg/domain-errors"
)

// RemoteVersions is the HTTP collaborator used for discovery. Implementations
// own timeouts and retries and report transport failures as CodeNetwork.
type RemoteVersions interface {
	FetchVersions(ctx context.Context, versionsURL, token string) ([]models.VersionInfo, error)
	FetchVersionDetails(ctx context.Context, detailsURL, token string, version domain.VersionNumber) (*models.VersionDetails, error)
}

// Negotiator resolves the version and endpoint set two parties share.
type Negotiator struct {
	local  *models.Platform
	remote RemoteVersions
	logger *slog.Logger
}

type Option func(*Negotiator)

func WithLogger(logger *slog.Logger) Option {
	return func(n *Negotiator) {
		n.logger = logger
	}
}

func New(local *models.Platform, remote RemoteVersions, opts ...Option) *Negotiator {
	n := &Negotiator{local: local, remote: remote, logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Local returns the platform advertisement the negotiator works against.
func (n *Negotiator) Local() *models.Platform {
	return n.local
}

// Discover runs version discovery and negotiation against a counterparty's
// versions URL: GET the version list, then Negotiate.
func (n *Negotiator) Discover(ctx context.Context, versionsURL, token string) (*models.NegotiationResult, error) {
	remote, err := n.remote.FetchVersions(ctx, versionsURL, token)
	if err != nil {
		return nil, err
	}
	return n.Negotiate(ctx, n.local, remote, token)
}

// Negotiate picks the numerically highest common version, fetches the
// remote endpoint list for it and keeps the endpoints whose module the local
// platform also exposes. An empty intersection fails with CodeNoCommonVersion
// before any further network call.
func (n *Negotiator) Negotiate(ctx context.Context, local *models.Platform, remote []models.VersionInfo, token string) (*models.NegotiationResult, error) {
	chosen, ok := highestCommon(local.VersionNumbers(), remote)
	if !ok {
		n.logger.InfoContext(ctx, "no common OCPI version",
			"local", local.VersionNumbers(),
			"remote", remoteNumbers(remote),
		)
		return nil, dErrors.New(dErrors.CodeNoCommonVersion, "no common OCPI version")
	}

	details, err := n.remote.FetchVersionDetails(ctx, chosen.URL, token, chosen.Version)
	if err != nil {
		return nil, err
	}
	if details.Version != "" && details.Version.Compare(chosen.Version) != 0 {
		return nil, dErrors.New(dErrors.CodeNegotiationFailed, "version details do not match the negotiated version")
	}

	localDetails, _ := local.Details(chosen.Version)
	localIDs := models.Identifiers(localDetails.Endpoints)

	endpoints := make([]models.EndpointCapability, 0, len(details.Endpoints))
	for _, ep := range details.Endpoints {
		if ep.URL == "" || !slices.Contains(localIDs, ep.Identifier) {
			continue
		}
		endpoints = append(endpoints, ep)
	}

	return &models.NegotiationResult{
		Version:       chosen.Version,
		RemoteVersion: chosen,
		Endpoints:     endpoints,
	}, nil
}

// highestCommon intersects on version number and returns the remote entry of
// the highest shared version.
func highestCommon(local []domain.VersionNumber, remote []models.VersionInfo) (models.VersionInfo, bool) {
	var best models.VersionInfo
	found := false
	for _, rv := range remote {
		if rv.Version.IsNil() || rv.URL == "" {
			continue
		}
		if !slices.ContainsFunc(local, func(lv domain.VersionNumber) bool { return lv.Compare(rv.Version) == 0 }) {
			continue
		}
		if !found || rv.Version.Compare(best.Version) > 0 {
			best = rv
			found = true
		}
	}
	return best, found
}

func remoteNumbers(remote []models.VersionInfo) []domain.VersionNumber {
	out := make([]domain.VersionNumber, len(remote))
	for i, v := range remote {
		out[i] = v.Version
	}
	return out
}
