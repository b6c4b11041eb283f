package core

import (
	"context"
	"errors"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

type ResolveRequest struct {
	SessionToken string
	// SessionElevated is set by the caller when the session belongs to an
	// administrator acting on behalf of TargetUserID.
	SessionElevated   bool
	TargetUserID      string
	TenantID          string
	OrganizerOverride string
	ProviderID        string
}

type Resolution struct {
	Token   string
	Mailbox string
	Tier    Tier
}

type OutcomeKind string

const (
	OutcomeFound         OutcomeKind = "found"
	OutcomeNotConfigured OutcomeKind = "not_configured"
	OutcomeExpired       OutcomeKind = "expired"
	OutcomeFailed        OutcomeKind = "failed"
)

// TierOutcome is what a single tier probe observed. Err carries the
// ConfigurationError of a NotConfigured tier, or the failure of an Expired or
// Failed tier.
type TierOutcome struct {
	Tier    Tier
	Kind    OutcomeKind
	Token   string
	Mailbox string
	Err     error
}

// DecideTier applies the fallback policy to outcomes listed in priority order.
// The first Found outcome wins. An Expired or Failed outcome ends the decision
// with its error; lower tiers are never consulted as a downgrade.
func DecideTier(outcomes []TierOutcome) (Resolution, error) {
	var configErr error
	for _, outcome := range outcomes {
		switch outcome.Kind {
		case OutcomeFound:
			return Resolution{Token: outcome.Token, Mailbox: outcome.Mailbox, Tier: outcome.Tier}, nil
		case OutcomeExpired, OutcomeFailed:
			if outcome.Err == nil {
				return Resolution{}, Unauthorized("credential tier " + outcome.Tier.String() + " failed")
			}
			return Resolution{}, outcome.Err
		default:
			if outcome.Err != nil && configErr == nil {
				configErr = outcome.Err
			}
		}
	}
	if configErr != nil {
		return Resolution{}, configErr
	}
	return Resolution{}, Unauthorized("")
}

// MailboxExtractor pulls a candidate mailbox for a delegated user.
type MailboxExtractor func(profile UserProfile, record DelegatedTokenRecord) string

// DefaultMailboxExtractors are tried in order; the first non-empty value wins.
var DefaultMailboxExtractors = []MailboxExtractor{
	func(profile UserProfile, _ DelegatedTokenRecord) string { return profile.ProviderMailbox },
	func(profile UserProfile, _ DelegatedTokenRecord) string { return profile.ProviderEmail },
	func(profile UserProfile, _ DelegatedTokenRecord) string { return profile.LinkedAccountEmail },
	func(_ UserProfile, record DelegatedTokenRecord) string { return record.BoundMailbox },
}

// ResolveMailbox runs the extractors and substitutes the self placeholder when
// nothing is found or the candidate is the platform user id itself.
func ResolveMailbox(userID string, profile UserProfile, record DelegatedTokenRecord, extractors ...MailboxExtractor) string {
	if len(extractors) == 0 {
		extractors = DefaultMailboxExtractors
	}
	for _, extract := range extractors {
		if extract == nil {
			continue
		}
		if candidate := strings.TrimSpace(extract(profile, record)); candidate != "" {
			return guardMailbox(userID, candidate)
		}
	}
	return SelfMailbox
}

func guardMailbox(userID string, mailbox string) string {
	mailbox = strings.TrimSpace(mailbox)
	if mailbox == "" || strings.EqualFold(mailbox, strings.TrimSpace(userID)) {
		return SelfMailbox
	}
	return mailbox
}

func isSelfMailbox(mailbox string) bool {
	return strings.EqualFold(strings.TrimSpace(mailbox), SelfMailbox)
}

type tierProbe func(ctx context.Context, req ResolveRequest) TierOutcome

// CredentialResolver picks one of the session, delegated and application
// tiers for a request.
type CredentialResolver struct {
	store      CredentialStore
	tenants    TenantCredentialStore
	tokens     *TokenLifecycleManager
	providerID string
	extractors []MailboxExtractor
}

func NewCredentialResolver(
	store CredentialStore,
	tenants TenantCredentialStore,
	tokens *TokenLifecycleManager,
	providerID string,
) *CredentialResolver {
	if tenants == nil {
		tenants = store
	}
	if strings.TrimSpace(providerID) == "" {
		providerID = DefaultCalendarProviderID
	}
	return &CredentialResolver{
		store:      store,
		tenants:    tenants,
		tokens:     tokens,
		providerID: providerID,
		extractors: DefaultMailboxExtractors,
	}
}

func (r *CredentialResolver) Resolve(ctx context.Context, req ResolveRequest) (Resolution, error) {
	if r == nil || r.store == nil {
		return Resolution{}, ConfigurationError(req.TenantID, "credential resolver is not configured")
	}
	if strings.TrimSpace(req.ProviderID) == "" {
		req.ProviderID = r.providerID
	}

	outcomes := make([]TierOutcome, 0, 3)
	for _, probe := range []tierProbe{r.probeSession, r.probeDelegated, r.probeApplication} {
		outcome := probe(ctx, req)
		outcomes = append(outcomes, outcome)
		if outcome.Kind != OutcomeNotConfigured {
			break
		}
	}
	resolution, err := DecideTier(outcomes)
	if err != nil {
		return Resolution{}, err
	}
	if resolution.Tier == TierApplication && isSelfMailbox(resolution.Mailbox) {
		return r.correctApplicationMailbox(ctx, req, resolution)
	}
	return resolution, nil
}

func (r *CredentialResolver) probeSession(ctx context.Context, req ResolveRequest) TierOutcome {
	token := strings.TrimSpace(req.SessionToken)
	if token == "" {
		return TierOutcome{Tier: TierSession, Kind: OutcomeNotConfigured}
	}
	mailbox := SelfMailbox
	userID := strings.TrimSpace(req.TargetUserID)
	if req.SessionElevated && userID != "" {
		profile, err := r.store.GetUserProfile(ctx, userID)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return TierOutcome{Tier: TierSession, Kind: OutcomeFailed, Err: storeError(err, "failed to load user profile")}
		}
		mailbox = ResolveMailbox(userID, profile, DelegatedTokenRecord{}, r.extractors...)
		// An elevated session acts for someone else; its own mailbox is never the target.
		if isSelfMailbox(mailbox) {
			return TierOutcome{
				Tier: TierSession,
				Kind: OutcomeFailed,
				Err:  ConfigurationError(req.TenantID, "no mailbox is known for the target user", "provider_mailbox"),
			}
		}
	}
	return TierOutcome{Tier: TierSession, Kind: OutcomeFound, Token: token, Mailbox: mailbox}
}

func (r *CredentialResolver) probeDelegated(ctx context.Context, req ResolveRequest) TierOutcome {
	userID := strings.TrimSpace(req.TargetUserID)
	if userID == "" {
		return TierOutcome{Tier: TierDelegated, Kind: OutcomeNotConfigured}
	}
	record, err := r.store.GetDelegatedToken(ctx, userID, req.ProviderID)
	if errors.Is(err, ErrNotFound) {
		return TierOutcome{Tier: TierDelegated, Kind: OutcomeNotConfigured}
	}
	if err != nil {
		return TierOutcome{Tier: TierDelegated, Kind: OutcomeFailed, Err: storeError(err, "failed to load delegated token")}
	}

	token, err := r.tokens.GetDelegatedToken(ctx, record)
	if err != nil {
		kind := OutcomeFailed
		if IsCredentialExpired(err) {
			kind = OutcomeExpired
		}
		return TierOutcome{Tier: TierDelegated, Kind: kind, Err: err}
	}

	profile, err := r.store.GetUserProfile(ctx, userID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return TierOutcome{Tier: TierDelegated, Kind: OutcomeFailed, Err: storeError(err, "failed to load user profile")}
	}
	return TierOutcome{
		Tier:    TierDelegated,
		Kind:    OutcomeFound,
		Token:   token,
		Mailbox: ResolveMailbox(userID, profile, record, r.extractors...),
	}
}

func (r *CredentialResolver) probeApplication(ctx context.Context, req ResolveRequest) TierOutcome {
	tenantID := strings.TrimSpace(req.TenantID)
	if tenantID == "" {
		return TierOutcome{Tier: TierApplication, Kind: OutcomeNotConfigured}
	}
	creds, err := r.tenants.GetTenantCredentials(ctx, tenantID)
	if errors.Is(err, ErrNotFound) {
		return TierOutcome{Tier: TierApplication, Kind: OutcomeNotConfigured}
	}
	if err != nil {
		return TierOutcome{Tier: TierApplication, Kind: OutcomeFailed, Err: storeError(err, "failed to load tenant credentials")}
	}
	if missing := creds.MissingAppFields(); len(missing) > 0 {
		return TierOutcome{
			Tier: TierApplication,
			Kind: OutcomeNotConfigured,
			Err:  ConfigurationError(tenantID, "tenant app registration is incomplete", missing...),
		}
	}

	mailbox := strings.TrimSpace(req.OrganizerOverride)
	if mailbox != "" {
		mailbox = guardMailbox(req.TargetUserID, mailbox)
	} else {
		mailbox = strings.TrimSpace(creds.CoordinatorMailbox)
	}
	if mailbox == "" {
		return TierOutcome{
			Tier: TierApplication,
			Kind: OutcomeNotConfigured,
			Err:  ConfigurationError(tenantID, "tenant has no coordinator mailbox", "coordinator_mailbox"),
		}
	}

	token, err := r.tokens.GetAppToken(ctx, creds)
	if err != nil {
		return TierOutcome{Tier: TierApplication, Kind: OutcomeFailed, Err: err}
	}
	return TierOutcome{Tier: TierApplication, Kind: OutcomeFound, Token: token, Mailbox: mailbox}
}

// correctApplicationMailbox replaces a self placeholder on the application
// tier, which has no "self", with the coordinator read from the backing store.
func (r *CredentialResolver) correctApplicationMailbox(ctx context.Context, req ResolveRequest, resolution Resolution) (Resolution, error) {
	tenantID := strings.TrimSpace(req.TenantID)
	var (
		creds TenantCredentials
		err   error
	)
	if reloader, ok := r.tenants.(TenantCredentialReloader); ok {
		creds, err = reloader.ReloadTenantCredentials(ctx, tenantID)
	} else {
		creds, err = r.tenants.GetTenantCredentials(ctx, tenantID)
	}
	if err != nil && !errors.Is(err, ErrNotFound) {
		return Resolution{}, storeError(err, "failed to reload tenant credentials")
	}
	coordinator := guardMailbox(req.TargetUserID, creds.CoordinatorMailbox)
	if isSelfMailbox(coordinator) {
		return Resolution{}, ConfigurationError(tenantID, "tenant has no coordinator mailbox", "coordinator_mailbox")
	}
	resolution.Mailbox = coordinator
	return resolution, nil
}

func storeError(err error, message string) error {
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return richErr
	}
	return goerrors.Wrap(err, goerrors.CategoryOperation, message).WithTextCode(ErrorInternal)
}
