package domain

// TenantBrandingProfile is the per-tenant presentation applied to every
// rendered message.
type TenantBrandingProfile struct {
	TenantID     string `json:"tenantId"`
	Name         string `json:"name"`
	LogoURL      string `json:"logoUrl"`
	PrimaryColor string `json:"primaryColor"`
	Address      string `json:"address"`
	Phone        string `json:"phone"`
	Email        string `json:"email"`

	Locale         string `json:"locale,omitempty"`
	CurrencySymbol string `json:"currencySymbol,omitempty"`
	Timezone       string `json:"timezone,omitempty"`
}

const (
	DefaultLocale         = "en-US"
	DefaultCurrencySymbol = "$"
	DefaultTimezone       = "UTC"
	DefaultPrimaryColor   = "#333333"
)

// DefaultBranding is used for a tenant that exists but has no branding record.
func DefaultBranding(tenantID string) TenantBrandingProfile {
	return TenantBrandingProfile{
		TenantID:       tenantID,
		Name:           "Your Salon",
		PrimaryColor:   DefaultPrimaryColor,
		Locale:         DefaultLocale,
		CurrencySymbol: DefaultCurrencySymbol,
		Timezone:       DefaultTimezone,
	}
}

// WithDefaults fills the presentation settings a tenant left empty.
func (b TenantBrandingProfile) WithDefaults() TenantBrandingProfile {
	if b.Locale == "" {
		b.Locale = DefaultLocale
	}
	if b.CurrencySymbol == "" {
		b.CurrencySymbol = DefaultCurrencySymbol
	}
	if b.Timezone == "" {
		b.Timezone = DefaultTimezone
	}
	if b.PrimaryColor == "" {
		b.PrimaryColor = DefaultPrimaryColor
	}
	return b
}
