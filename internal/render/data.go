package render

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/notifyhub/salon-notifier/internal/domain"
)

// Date and time layouts are fixed; only the zone follows the tenant.
const (
	dateLayout = "Monday, January 2, 2006"
	timeLayout = "3:04 PM"
)

// templateData is the struct passed into every template.
type templateData struct {
	Subject string

	SalonName    string
	LogoURL      string
	PrimaryColor string
	SalonAddress string
	SalonPhone   string
	SalonEmail   string

	ClientName      string
	ClientFirstName string
	StylistName     string

	Date      string
	StartTime string
	EndTime   string
	Services  []serviceLine
	Total     string
	Notes     string
	Reason    string
}

type serviceLine struct {
	Name    string
	Minutes int
	Price   string
}

// moneyFormatter formats amounts for one tenant's locale and symbol.
type moneyFormatter struct {
	printer *message.Printer
	symbol  string
	decimal string
}

func newMoneyFormatter(locale, symbol string) moneyFormatter {
	tag, err := language.Parse(locale)
	if err != nil {
		tag = language.AmericanEnglish
	}
	p := message.NewPrinter(tag)
	sep := strings.Trim(p.Sprintf("%.1f", 1.5), "15")
	if sep == "" {
		sep = "."
	}
	return moneyFormatter{printer: p, symbol: symbol, decimal: sep}
}

// format groups the whole part with the locale printer and appends the
// exact cents of the decimal.
func (m moneyFormatter) format(d decimal.Decimal) string {
	d = d.Round(2)
	sign := ""
	if d.IsNegative() {
		sign = "-"
		d = d.Neg()
	}
	whole, cents, _ := strings.Cut(d.StringFixed(2), ".")
	if d.LessThan(maxGroupable) {
		whole = m.printer.Sprintf("%d", d.IntPart())
	}
	return sign + m.symbol + whole + m.decimal + cents
}

// maxGroupable is the largest whole part IntPart represents exactly.
var maxGroupable = decimal.NewFromInt(math.MaxInt64)

// FormatMoney renders d in locale with the given currency symbol, e.g. "$1,250.00".
func FormatMoney(d decimal.Decimal, locale, symbol string) string {
	return newMoneyFormatter(locale, symbol).format(d)
}

// location resolves a tenant zone, falling back to the default zone when
// the configured name is unknown.
func location(name string) (*time.Location, error) {
	if name == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(name)
	if err == nil {
		return loc, nil
	}
	if def, derr := time.LoadLocation(domain.DefaultTimezone); derr == nil {
		return def, err
	}
	return time.UTC, err
}

func buildTemplateData(kind domain.EventKind, mc domain.MessageContext, loc *time.Location) templateData {
	b := mc.Branding.WithDefaults()
	money := newMoneyFormatter(b.Locale, b.CurrencySymbol)

	salon := b.Name
	if salon == "" {
		salon = domain.DefaultBranding(b.TenantID).Name
	}

	first := mc.Client.FirstName
	if first == "" {
		first = "there"
	}

	appt := mc.Appointment
	start := appt.StartsAt.In(loc)
	end := appt.EndsAt.In(loc)

	services := make([]serviceLine, 0, len(appt.Services))
	for _, s := range appt.Services {
		services = append(services, serviceLine{Name: s.Name, Minutes: s.Minutes, Price: money.format(s.Price)})
	}

	data := templateData{
		Subject:         fmt.Sprintf("%s - %s", subjects[kind], salon),
		SalonName:       salon,
		LogoURL:         b.LogoURL,
		PrimaryColor:    b.PrimaryColor,
		SalonAddress:    b.Address,
		SalonPhone:      b.Phone,
		SalonEmail:      b.Email,
		ClientName:      mc.Client.FullName(),
		ClientFirstName: first,
		StylistName:     mc.Stylist.Name,
		Services:        services,
		Total:           money.format(appt.Total()),
		Notes:           strings.TrimSpace(appt.Notes),
		Reason:          mc.Event.PayloadString("reason"),
	}
	if !appt.StartsAt.IsZero() {
		data.Date = start.Format(dateLayout)
		data.StartTime = start.Format(timeLayout)
	}
	if !appt.EndsAt.IsZero() {
		data.EndTime = end.Format(timeLayout)
	}
	return data
}
