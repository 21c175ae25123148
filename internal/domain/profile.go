package domain

import "strings"

// ProfileTypeBilling: платёжный профиль покупателя.
const ProfileTypeBilling = "billing"

// Address: почтовый адрес профиля.
type Address struct {
	Recipient          string `json:"recipient"`
	Organization       string `json:"organization,omitempty"`
	AddressLine1       string `json:"address_line1"`
	AddressLine2       string `json:"address_line2,omitempty"`
	Locality           string `json:"locality"`
	AdministrativeArea string `json:"administrative_area,omitempty"`
	PostalCode         string `json:"postal_code"`
	CountryCode        string `json:"country_code"`
}

// Lines возвращает непустые строки адреса для отображения на review.
func (a Address) Lines() []string {
	lines := make([]string, 0, 6)
	for _, v := range []string{a.Recipient, a.Organization, a.AddressLine1, a.AddressLine2} {
		if strings.TrimSpace(v) != "" {
			lines = append(lines, v)
		}
	}
	city := strings.TrimSpace(strings.Join([]string{a.PostalCode, a.Locality}, " "))
	if city != "" {
		lines = append(lines, city)
	}
	if a.CountryCode != "" {
		lines = append(lines, a.CountryCode)
	}
	return lines
}

// Profile: типизированная адресная запись заказа или пользователя.
type Profile struct {
	ID      string  `json:"id"`
	Type    string  `json:"type"`
	OwnerID string  `json:"owner_id,omitempty"`
	Address Address `json:"address"`
	// Locked выставляется при завершении заказа: профиль становится историческим снимком.
	Locked bool `json:"locked"`
}

// Update заменяет адрес, если профиль ещё не заблокирован.
func (p *Profile) Update(addr Address) error {
	if p.Locked {
		return ErrProfileLocked
	}
	p.Address = addr
	return nil
}
