package checkout

import (
	"context"
	"errors"

	"github.com/vladislavdragonenkov/commerce/internal/domain"
)

// Действия панели логина.
const (
	OpContinueAsGuest = "continue_as_guest"
	OpRegister        = "register"
	OpLogin           = "login"
)

// Поля панели логина.
const (
	FieldRegisterMail      = "login[register][mail]"
	FieldRegisterPass      = "login[register][pass][pass1]"
	FieldRegisterPassAgain = "login[register][pass][pass2]"
	FieldReturningName     = "login[returning_customer][name]"
	FieldReturningPassword = "login[returning_customer][password]"
)

const (
	msgRegistrationSuccess = "Registration successful. You can now continue the checkout."
	msgBadCredentials      = "Unrecognized username or password."
)

// LoginPaneConfig: настройки панели логина.
type LoginPaneConfig struct {
	AllowGuestCheckout bool
	AllowRegistration  bool
}

// DefaultLoginPaneConfig: гостям можно, регистрации нет.
func DefaultLoginPaneConfig() LoginPaneConfig {
	return LoginPaneConfig{AllowGuestCheckout: true, AllowRegistration: false}
}

// Authenticator регистрирует и проверяет покупателей.
type Authenticator interface {
	Register(ctx context.Context, email, password, passwordConfirm string) (string, error)
	Authenticate(ctx context.Context, email, password string) (domain.Account, error)
}

// LoginPane: выбор: войти, зарегистрироваться или продолжить как гость.
type LoginPane struct {
	cfg  LoginPaneConfig
	auth Authenticator
}

func NewLoginPane(cfg LoginPaneConfig, auth Authenticator) *LoginPane {
	return &LoginPane{cfg: cfg, auth: auth}
}

func (p *LoginPane) ID() string    { return "login" }
func (p *LoginPane) Title() string { return "Log in or continue" }

// Visible только для анонима, который ещё не выбрал способ.
func (p *LoginPane) Visible(st *State) bool {
	return st.Order.OwnerID == "" &&
		!st.Actor.Authenticated() &&
		st.Order.CheckoutMode == domain.CheckoutModeNone
}

func (p *LoginPane) Render(_ *State) PaneView {
	view := PaneView{
		ID:      p.ID(),
		Title:   p.Title(),
		Actions: []string{OpLogin},
		Fields: map[string]string{
			FieldReturningName:     "",
			FieldReturningPassword: "",
		},
	}
	if p.cfg.AllowGuestCheckout {
		view.Actions = append(view.Actions, OpContinueAsGuest)
	}
	if p.cfg.AllowRegistration {
		view.Actions = append(view.Actions, OpRegister)
		view.Fields[FieldRegisterMail] = ""
		view.Fields[FieldRegisterPass] = ""
		view.Fields[FieldRegisterPassAgain] = ""
	}
	return view
}

func (p *LoginPane) Validate(_ context.Context, _ *State, in Input) domain.ValidationErrors {
	var errs domain.ValidationErrors
	switch in.Get(FieldOp) {
	case OpContinueAsGuest:
		if !p.cfg.AllowGuestCheckout {
			errs.Add(FieldOp, "Guest checkout is not available.")
		}
	case OpRegister:
		if !p.cfg.AllowRegistration || p.auth == nil {
			errs.Add(FieldOp, "Registration is not available.")
		}
	case OpLogin:
		if p.auth == nil {
			errs.Add(FieldOp, "Login is not available.")
		}
	default:
		errs.Add(FieldOp, "Choose how to continue.")
	}
	return errs
}

// Apply выполняет выбранное действие. Ошибки регистрации и входа
// возвращаются как ошибки полей, шаг остаётся на месте.
func (p *LoginPane) Apply(ctx context.Context, st *State, in Input) error {
	switch in.Get(FieldOp) {
	case OpContinueAsGuest:
		st.Order.CheckoutMode = domain.CheckoutModeGuest
		return nil

	case OpRegister:
		accountID, err := p.auth.Register(ctx,
			in.Get(FieldRegisterMail), in.Raw(FieldRegisterPass), in.Raw(FieldRegisterPassAgain))
		if regErr, ok := domain.IsRegistrationError(err); ok {
			return domain.ValidationErrors{{Field: registrationField(regErr.Kind), Message: regErr.Kind.Message()}}
		}
		if err != nil {
			return err
		}
		st.LoginAs(accountID, domain.CheckoutModeRegistered)
		st.AddMessage(msgRegistrationSuccess)
		return nil

	case OpLogin:
		account, err := p.auth.Authenticate(ctx, in.Get(FieldReturningName), in.Raw(FieldReturningPassword))
		if errors.Is(err, domain.ErrInvalidCredentials) {
			return domain.ValidationErrors{{Field: FieldReturningName, Message: msgBadCredentials}}
		}
		if err != nil {
			return err
		}
		st.LoginAs(account.ID, domain.CheckoutModeLogin)
		return nil
	}
	return nil
}

func registrationField(kind domain.RegistrationErrorKind) string {
	switch kind {
	case domain.RegistrationPasswordMandatory, domain.RegistrationPasswordMismatch:
		return FieldRegisterPass
	default:
		return FieldRegisterMail
	}
}
