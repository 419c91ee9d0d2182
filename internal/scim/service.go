package scim

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/ad-scim/bridge/internal/adtool"
	"github.com/ad-scim/bridge/internal/cache"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// APIError is a classified failure the HTTP transport renders as a
// SCIM Error envelope.
type APIError struct {
	Status   int
	ScimType string
	Detail   string
}

func (e *APIError) Error() string { return e.Detail }

func serverError() *APIError {
	return &APIError{Status: 500, Detail: "internal server error"}
}

// Service is the request processor (component G): it orchestrates
// list/get/create/replace/patch/delete, sequencing cache writes around
// directory-tool invocations per the ordering rules in spec §4.G.
type Service struct {
	cache           cache.Store
	ad              *adtool.Client
	baseOu          string
	defaultPassword string
	baseURL         string
	logger          *zap.Logger
}

// NewService creates the SCIM request processor.
func NewService(cacheStore cache.Store, adClient *adtool.Client, baseOu, defaultPassword, baseURL string, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		cache:           cacheStore,
		ad:              adClient,
		baseOu:          baseOu,
		defaultPassword: defaultPassword,
		baseURL:         baseURL,
		logger:          logger,
	}
}

// List serves GET /Users. startIndex is 1-based and clamped to ≥1;
// count is clamped to [1, 200]. An unsupported or absent filter falls
// back to an unfiltered page.
func (s *Service) List(ctx context.Context, filterExpr string, startIndex, count int) (ListResponse, *APIError) {
	if startIndex < 1 {
		startIndex = 1
	}
	if count < 1 {
		count = 1
	}
	if count > 200 {
		count = 200
	}

	var column, op, value string
	hasFilter := false
	if f, ok := ParseFilter(filterExpr); ok {
		column, op, value = f.Column, string(f.Op), f.Value
		hasFilter = true
		// sam_account_name is always stored pre-truncated by computeSam,
		// so a userName filter has to be normalized the same way or it
		// never matches (spec's boundary case: userName eq "x@y" must
		// match sam_account_name="x").
		if column == "sam_account_name" {
			value = computeSam(value)
		}
	}

	rows, total, err := s.cache.Page(ctx, column, op, value, hasFilter, startIndex-1, count)
	if err != nil {
		s.logger.Error("cache page failed", zap.Error(err))
		return ListResponse{}, serverError()
	}

	users := make([]User, 0, len(rows))
	for i := range rows {
		users = append(users, s.formatRow(&rows[i]))
	}
	return FormatList(users, total, startIndex), nil
}

// Get serves GET /Users/{id}.
func (s *Service) Get(ctx context.Context, id string) (User, *APIError) {
	row, err := s.cache.FindByID(ctx, id)
	if errors.Is(err, cache.ErrNotFound) {
		return User{}, &APIError{Status: 404, ScimType: "noTarget", Detail: "resource not found"}
	}
	if err != nil {
		s.logger.Error("cache lookup failed", zap.Error(err))
		return User{}, serverError()
	}
	return s.formatRow(row), nil
}

// Create serves POST /Users. The cache row is written only after the
// directory create succeeds, so a failed create never leaves an
// orphan row.
func (s *Service) Create(ctx context.Context, user User) (User, *APIError) {
	if user.UserName == "" {
		return User{}, &APIError{Status: 400, ScimType: "invalidValue", Detail: "userName is required"}
	}

	sam := computeSam(user.UserName)
	if _, err := s.cache.FindBySam(ctx, sam); err == nil {
		return User{}, &APIError{Status: 409, ScimType: "uniqueness", Detail: "sam_account_name already exists"}
	} else if !errors.Is(err, cache.ErrNotFound) {
		s.logger.Error("cache lookup failed", zap.Error(err))
		return User{}, serverError()
	}

	id := user.ExternalID
	if id == "" {
		id = uuid.NewString()
	}
	user.ID = id

	params := ScimToParams(user, s.baseOu)
	res, cmdErr := s.ad.Create(ctx, params, s.defaultPassword, id)
	if cmdErr != nil {
		return User{}, classify(cmdErr)
	}

	var guid *string
	if res.ObjectGUID != "" {
		g := res.ObjectGUID
		guid = &g
	}

	b, err := json.Marshal(user)
	if err != nil {
		return User{}, serverError()
	}

	row := cache.Row{
		ID:             id,
		ADObjectGUID:   guid,
		SamAccountName: &sam,
		ScimResource:   string(b),
		SyncStatus:     cache.StatusSynced,
	}
	if err := s.cache.Insert(ctx, row); err != nil {
		if errors.Is(err, cache.ErrDuplicateSam) {
			return User{}, &APIError{Status: 409, ScimType: "uniqueness", Detail: "sam_account_name already exists"}
		}
		s.logger.Error("cache insert failed", zap.Error(err))
		return User{}, serverError()
	}

	s.refresh(ctx, identityFor(&row), id)

	stored, err := s.cache.FindByID(ctx, id)
	if err != nil {
		s.logger.Error("cache re-read after create failed", zap.Error(err))
		return User{}, serverError()
	}
	return s.formatRow(stored), nil
}

// Replace serves PUT /Users/{id}. The cache is written pending before
// the directory call so a crash mid-request leaves a recoverable
// state: the pending row plus the audit log.
func (s *Service) Replace(ctx context.Context, id string, user User) (User, *APIError) {
	row, err := s.cache.FindByID(ctx, id)
	if errors.Is(err, cache.ErrNotFound) {
		return User{}, &APIError{Status: 404, ScimType: "noTarget", Detail: "resource not found"}
	}
	if err != nil {
		s.logger.Error("cache lookup failed", zap.Error(err))
		return User{}, serverError()
	}

	user.ID = id
	b, err := json.Marshal(user)
	if err != nil {
		return User{}, serverError()
	}
	view := string(b)

	if err := s.cache.Update(ctx, id, cache.Fields{ScimResource: &view, SyncStatus: strPtr(cache.StatusPending)}); err != nil {
		s.logger.Error("cache pending write failed", zap.Error(err))
		return User{}, serverError()
	}

	identity := identityFor(row)
	if identity == "" {
		return User{}, &APIError{Status: 500, Detail: "row has neither ad_object_guid nor sam_account_name"}
	}

	params := ScimToParams(user, "")
	res, cmdErr := s.ad.Update(ctx, identity, params, id)
	if cmdErr != nil {
		return User{}, s.markError(ctx, id, cmdErr)
	}
	_ = res

	if err := s.cache.Update(ctx, id, cache.Fields{SyncStatus: strPtr(cache.StatusSynced), ClearLastError: true}); err != nil {
		s.logger.Error("cache synced write failed", zap.Error(err))
		return User{}, serverError()
	}

	s.refresh(ctx, identity, id)

	stored, err := s.cache.FindByID(ctx, id)
	if err != nil {
		s.logger.Error("cache re-read after replace failed", zap.Error(err))
		return User{}, serverError()
	}
	return s.formatRow(stored), nil
}

// Patch serves PATCH /Users/{id}. Only the fields the patch applier
// reports as changed are pushed to the directory tool; if none of them
// map to a recognized parameter, the directory call is skipped.
func (s *Service) Patch(ctx context.Context, id string, req PatchRequest) (User, *APIError) {
	if len(req.Operations) == 0 {
		return User{}, &APIError{Status: 400, ScimType: "invalidValue", Detail: "Operations must be a non-empty list"}
	}

	row, err := s.cache.FindByID(ctx, id)
	if errors.Is(err, cache.ErrNotFound) {
		return User{}, &APIError{Status: 404, ScimType: "noTarget", Detail: "resource not found"}
	}
	if err != nil {
		s.logger.Error("cache lookup failed", zap.Error(err))
		return User{}, serverError()
	}

	view, err := parseStoredView(row.ScimResource)
	if err != nil {
		s.logger.Error("stored scim_resource is not valid JSON", zap.Error(err))
		return User{}, serverError()
	}

	newView, changed := ApplyPatch(view, req.Operations)
	newView["id"] = id

	b, err := json.Marshal(newView)
	if err != nil {
		return User{}, serverError()
	}
	viewStr := string(b)

	if err := s.cache.Update(ctx, id, cache.Fields{ScimResource: &viewStr, SyncStatus: strPtr(cache.StatusPending)}); err != nil {
		s.logger.Error("cache pending write failed", zap.Error(err))
		return User{}, serverError()
	}

	changedUser := decodeMapToUser(changed)
	params := ScimToParams(changedUser, "")

	if len(params) > 0 {
		identity := identityFor(row)
		if identity == "" {
			return User{}, &APIError{Status: 500, Detail: "row has neither ad_object_guid nor sam_account_name"}
		}
		if _, cmdErr := s.ad.Update(ctx, identity, params, id); cmdErr != nil {
			return User{}, s.markError(ctx, id, cmdErr)
		}
		if err := s.cache.Update(ctx, id, cache.Fields{SyncStatus: strPtr(cache.StatusSynced), ClearLastError: true}); err != nil {
			s.logger.Error("cache synced write failed", zap.Error(err))
			return User{}, serverError()
		}
		s.refresh(ctx, identity, id)
	}

	stored, err := s.cache.FindByID(ctx, id)
	if err != nil {
		s.logger.Error("cache re-read after patch failed", zap.Error(err))
		return User{}, serverError()
	}
	return s.formatRow(stored), nil
}

// Delete serves DELETE /Users/{id}. A directory "already gone" error
// is treated as success; other failures abort before the cache row is
// removed.
func (s *Service) Delete(ctx context.Context, id string) *APIError {
	row, err := s.cache.FindByID(ctx, id)
	if errors.Is(err, cache.ErrNotFound) {
		return &APIError{Status: 404, ScimType: "noTarget", Detail: "resource not found"}
	}
	if err != nil {
		s.logger.Error("cache lookup failed", zap.Error(err))
		return serverError()
	}

	identity := identityFor(row)
	if identity != "" {
		if _, cmdErr := s.ad.Delete(ctx, identity, id); cmdErr != nil {
			var ce *adtool.CommandError
			if errors.As(cmdErr, &ce) && !adtool.IsAlreadyGone(ce.Stderr) {
				return classify(cmdErr)
			}
		}
	}

	if err := s.cache.Delete(ctx, id); err != nil {
		s.logger.Error("cache delete failed", zap.Error(err))
		return serverError()
	}
	return nil
}

// refresh performs a best-effort directory read-back to hydrate
// ad_resource. Failure is logged and ignored; it never fails the
// enclosing request.
func (s *Service) refresh(ctx context.Context, identity, id string) {
	if identity == "" {
		return
	}
	adView, err := s.ad.Read(ctx, identity, id)
	if err != nil || adView == nil {
		s.logger.Warn("refresh read-back failed", zap.String("id", id), zap.Error(err))
		return
	}
	b, err := json.Marshal(adView)
	if err != nil {
		return
	}
	raw := string(b)
	if err := s.cache.Update(ctx, id, cache.Fields{ADResource: &raw}); err != nil {
		s.logger.Warn("refresh cache write failed", zap.String("id", id), zap.Error(err))
	}
}

// markError classifies a directory-tool failure and records it onto
// the row so GET continues to surface the divergence.
func (s *Service) markError(ctx context.Context, id string, cmdErr error) *APIError {
	apiErr := classify(cmdErr)
	lastErr := apiErr.Detail
	if uerr := s.cache.Update(ctx, id, cache.Fields{SyncStatus: strPtr(cache.StatusError), LastError: &lastErr}); uerr != nil {
		s.logger.Error("cache error-status write failed", zap.Error(uerr))
	}
	return apiErr
}

func classify(cmdErr error) *APIError {
	var ce *adtool.CommandError
	if errors.As(cmdErr, &ce) {
		cls := adtool.Classify(ce.Stderr)
		return &APIError{Status: cls.HTTPStatus, ScimType: cls.ScimType, Detail: cls.Detail}
	}
	return &APIError{Status: 500, Detail: cmdErr.Error()}
}

func (s *Service) formatRow(row *cache.Row) User {
	view, err := parseStoredView(row.ScimResource)
	if err != nil {
		view = map[string]any{}
	}
	sam := ""
	if row.SamAccountName != nil {
		sam = *row.SamAccountName
	}
	return FormatUser(view, row.ID, sam, row.CreatedAt.UTC().Format(time.RFC3339), row.UpdatedAt.UTC().Format(time.RFC3339), s.baseURL)
}

// parseStoredView decodes the raw scim_resource column into an untyped
// view map (distinct from response.go's decodeView, which runs the
// opposite direction: untyped view -> typed User).
func parseStoredView(raw string) (map[string]any, error) {
	view := map[string]any{}
	if raw == "" {
		return view, nil
	}
	if err := json.Unmarshal([]byte(raw), &view); err != nil {
		return nil, err
	}
	return view, nil
}

// decodeMapToUser round-trips a changedFields map through the typed
// User struct so ScimToParams can be reused for a partial update.
func decodeMapToUser(m map[string]any) User {
	var u User
	b, err := json.Marshal(m)
	if err != nil {
		return User{}
	}
	_ = json.Unmarshal(b, &u)
	return u
}

func identityFor(row *cache.Row) string {
	if row.ADObjectGUID != nil && *row.ADObjectGUID != "" {
		return *row.ADObjectGUID
	}
	if row.SamAccountName != nil && *row.SamAccountName != "" {
		return *row.SamAccountName
	}
	return ""
}

func computeSam(userName string) string {
	sam := userName
	if i := strings.Index(userName, "@"); i >= 0 {
		sam = userName[:i]
	}
	if len(sam) > 20 {
		sam = sam[:20]
	}
	return sam
}

func strPtr(s string) *string { return &s }
