// internal/i18n/keys.go
package i18n

// Translation keys constants
const (
	// Authentication
	KeyAuthRequired           = "auth.required"
	KeyAuthInvalidToken       = "auth.invalid_token"
	KeyAuthTokenExpired       = "auth.token_expired"
	KeyAuthInvalidCredentials = "auth.invalid_credentials"
	KeyAuthUserNotFound       = "auth.user_not_found"
	KeyAuthUserExists         = "auth.user_exists"
	KeyAuthShopRequired       = "auth.shop_required"
	KeyAuthAdminRequired      = "auth.admin_required"

	// Admin
	KeyAdminTargetProtected = "admin.target_protected"

	// Partner
	KeyPartnerShopNotFound = "partner.shop_not_found"
	KeyPartnerInvalidURL   = "partner.invalid_url"

	// Feed errors, one per error kind
	KeyFeedFetchFailed = "feed.fetch_failed"
	KeyFeedInvalid     = "feed.invalid"
	KeyFeedConflict    = "feed.conflict"
	KeyInternal        = "internal"

	// Validation
	KeyValidationInvalid = "validation.invalid"

	KeyRateLimited = "rate_limited"
)
