package checkout

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/commerce/internal/domain"
)

// Поля контактной информации.
const (
	FieldContactEmail        = "contact_information[email]"
	FieldContactEmailConfirm = "contact_information[email_confirm]"
)

const (
	billingPrefix     = "billing_information[address][0][address]"
	billingFlatPrefix = "billing_information[address][0]"
)

// BillingField возвращает имя поля адреса, например BillingField("locality").
func BillingField(name string) string {
	return billingPrefix + "[" + name + "]"
}

// billingValue читает поле адреса; короткая форма billing_information[address][0][x] тоже принимается.
func billingValue(in Input, name string) string {
	if v := in.Get(BillingField(name)); v != "" {
		return v
	}
	return in.Get(billingFlatPrefix + "[" + name + "]")
}

// ContactInformationPane: email гостя.
type ContactInformationPane struct {
	validate *validator.Validate
}

func NewContactInformationPane(validate *validator.Validate) *ContactInformationPane {
	if validate == nil {
		validate = validator.New()
	}
	return &ContactInformationPane{validate: validate}
}

func (p *ContactInformationPane) ID() string    { return "contact_information" }
func (p *ContactInformationPane) Title() string { return "Contact information" }

// Visible для гостевого заказа: у авторизованных email берётся из аккаунта.
func (p *ContactInformationPane) Visible(st *State) bool {
	return st.Order.OwnerID == "" && !st.Actor.Authenticated()
}

func (p *ContactInformationPane) Render(st *State) PaneView {
	return PaneView{
		ID:    p.ID(),
		Title: p.Title(),
		Fields: map[string]string{
			FieldContactEmail:        st.Order.Email,
			FieldContactEmailConfirm: st.Order.Email,
		},
	}
}

func (p *ContactInformationPane) Summary(st *State) []string {
	if st.Order.Email == "" {
		return nil
	}
	return []string{st.Order.Email}
}

func (p *ContactInformationPane) Validate(_ context.Context, _ *State, in Input) domain.ValidationErrors {
	var errs domain.ValidationErrors
	email := in.Get(FieldContactEmail)
	confirm := in.Get(FieldContactEmailConfirm)

	switch {
	case email == "":
		errs.Add(FieldContactEmail, "Email field is required.")
	case p.validate.Var(email, "email") != nil:
		errs.Add(FieldContactEmail, fmt.Sprintf("The email address %s is not valid.", email))
	}
	if email != "" && !strings.EqualFold(email, confirm) {
		errs.Add(FieldContactEmailConfirm, "The specified emails do not match.")
	}
	return errs
}

func (p *ContactInformationPane) Apply(_ context.Context, st *State, in Input) error {
	st.Order.Email = in.Get(FieldContactEmail)
	return nil
}

// BillingInformationPane: платёжный адрес заказа.
type BillingInformationPane struct {
	validate *validator.Validate
}

func NewBillingInformationPane(validate *validator.Validate) *BillingInformationPane {
	if validate == nil {
		validate = validator.New()
	}
	return &BillingInformationPane{validate: validate}
}

func (p *BillingInformationPane) ID() string    { return "billing_information" }
func (p *BillingInformationPane) Title() string { return "Billing information" }

func (p *BillingInformationPane) Visible(_ *State) bool { return true }

func (p *BillingInformationPane) Render(st *State) PaneView {
	var addr domain.Address
	if st.Order.BillingProfile != nil {
		addr = st.Order.BillingProfile.Address
	}
	return PaneView{
		ID:    p.ID(),
		Title: p.Title(),
		Fields: map[string]string{
			BillingField("recipient"):           addr.Recipient,
			BillingField("organization"):        addr.Organization,
			BillingField("address_line1"):       addr.AddressLine1,
			BillingField("address_line2"):       addr.AddressLine2,
			BillingField("locality"):            addr.Locality,
			BillingField("administrative_area"): addr.AdministrativeArea,
			BillingField("postal_code"):         addr.PostalCode,
			BillingField("country_code"):        addr.CountryCode,
		},
	}
}

func (p *BillingInformationPane) Summary(st *State) []string {
	if st.Order.BillingProfile == nil {
		return nil
	}
	return st.Order.BillingProfile.Address.Lines()
}

func (p *BillingInformationPane) Validate(_ context.Context, _ *State, in Input) domain.ValidationErrors {
	var errs domain.ValidationErrors
	addr := addressFromInput(in)

	required := []struct {
		name  string
		value string
		label string
	}{
		{"recipient", addr.Recipient, "Recipient"},
		{"address_line1", addr.AddressLine1, "Street address"},
		{"locality", addr.Locality, "City"},
	}
	for _, f := range required {
		if f.value == "" {
			errs.Add(BillingField(f.name), f.label+" field is required.")
		}
	}
	if addr.CountryCode != "" && p.validate.Var(addr.CountryCode, "iso3166_1_alpha2") != nil {
		errs.Add(BillingField("country_code"), "The selected country is not valid.")
	}
	return errs
}

func (p *BillingInformationPane) Apply(_ context.Context, st *State, in Input) error {
	if st.Order.BillingProfile == nil {
		st.Order.BillingProfile = &domain.Profile{
			ID:      uuid.NewString(),
			Type:    domain.ProfileTypeBilling,
			OwnerID: st.Order.OwnerID,
		}
	}
	return st.Order.BillingProfile.Update(addressFromInput(in))
}

// addressFromInput собирает адрес; получатель может прийти как given_name + family_name.
// Индекс и страна необязательны, страна проверяется только если задана.
func addressFromInput(in Input) domain.Address {
	recipient := billingValue(in, "recipient")
	if recipient == "" {
		recipient = strings.TrimSpace(billingValue(in, "given_name") + " " + billingValue(in, "family_name"))
	}
	return domain.Address{
		Recipient:          recipient,
		Organization:       billingValue(in, "organization"),
		AddressLine1:       billingValue(in, "address_line1"),
		AddressLine2:       billingValue(in, "address_line2"),
		Locality:           billingValue(in, "locality"),
		AdministrativeArea: billingValue(in, "administrative_area"),
		PostalCode:         billingValue(in, "postal_code"),
		CountryCode:        strings.ToUpper(billingValue(in, "country_code")),
	}
}
