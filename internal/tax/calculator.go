package tax

import (
	"errors"
	"math"
	"strings"
)

// Regime налоговый режим счёта.
type Regime string

const (
	RegimeDomestic      Regime = "domestic"
	RegimeReverseCharge Regime = "reverse_charge"
	RegimeEUB2C         Regime = "eu_b2c"
	RegimeExport        Regime = "export"
	RegimeOutOfScope    Regime = "out_of_scope"
)

var (
	ErrSupplierCountry = errors.New("не указана страна исполнителя в платёжном профиле")
	ErrInvalidAmount   = errors.New("сумма счёта должна быть положительной")
)

const (
	noteReverseCharge = "Reverse charge: VAT to be accounted for by the recipient (Art. 196 Directive 2006/112/EC)"
	noteExportB2B     = "Not subject to EU VAT: place of supply outside the EU (Art. 44 Directive 2006/112/EC)"
	noteExportB2C     = "Not subject to EU VAT: advertising services supplied outside the EU (Art. 59 Directive 2006/112/EC)"
	noteOutOfScope    = "Supplier established outside the EU: EU VAT not charged"
)

// Party сторона сделки для расчёта налогов.
type Party struct {
	CountryCode string
	IsBusiness  bool
	TaxID       string
}

// Input данные для расчёта.
type Input struct {
	Supplier    Party
	IRPFReduced bool
	Customer    Party
	Subtotal    float64
}

// Result итог расчёта, суммы округлены до центов.
type Result struct {
	Regime     Regime  `json:"regime"`
	Subtotal   float64 `json:"subtotal"`
	VATRate    float64 `json:"vat_rate"`
	VATAmount  float64 `json:"vat_amount"`
	IRPFRate   float64 `json:"irpf_rate"`
	IRPFAmount float64 `json:"irpf_amount"`
	Total      float64 `json:"total"`
	Note       string  `json:"note,omitempty"`
}

// Calculator определяет режим и считает НДС и IRPF.
type Calculator struct {
	rates *Rates
}

// NewCalculator создаёт калькулятор на основе таблицы ставок.
func NewCalculator(rates *Rates) *Calculator {
	return &Calculator{rates: rates}
}

// IsEU сообщает, входит ли страна в таблицу НДС ЕС.
func (c *Calculator) IsEU(country string) bool {
	_, ok := c.rates.VAT[normalizeCountry(country)]
	return ok
}

// VATRate возвращает стандартную ставку страны.
func (c *Calculator) VATRate(country string) (float64, bool) {
	rate, ok := c.rates.VAT[normalizeCountry(country)]
	return rate, ok
}

// Calculate рассчитывает налоги для счёта.
// Если страна клиента не указана, услуга считается оказанной в стране исполнителя.
func (c *Calculator) Calculate(in Input) (Result, error) {
	if in.Subtotal <= 0 {
		return Result{}, ErrInvalidAmount
	}

	supplierCountry := normalizeCountry(in.Supplier.CountryCode)
	if supplierCountry == "" {
		return Result{}, ErrSupplierCountry
	}
	customerCountry := normalizeCountry(in.Customer.CountryCode)
	if customerCountry == "" {
		customerCountry = supplierCountry
	}

	res := Result{Subtotal: Round2(in.Subtotal)}

	supplierRate, supplierInEU := c.rates.VAT[supplierCountry]
	_, customerInEU := c.rates.VAT[customerCountry]

	switch {
	case !supplierInEU:
		res.Regime = RegimeOutOfScope
		res.Note = noteOutOfScope
	case supplierCountry == customerCountry:
		res.Regime = RegimeDomestic
		res.VATRate = supplierRate
		if c.withholdsIRPF(in.Supplier, in.Customer, supplierCountry) {
			res.IRPFRate = c.rates.IRPF.Standard
			if in.IRPFReduced {
				res.IRPFRate = c.rates.IRPF.Reduced
			}
		}
	case !customerInEU:
		res.Regime = RegimeExport
		res.Note = noteExportB2C
		if in.Customer.IsBusiness {
			res.Note = noteExportB2B
		}
	case in.Customer.IsBusiness && strings.TrimSpace(in.Customer.TaxID) != "":
		res.Regime = RegimeReverseCharge
		res.Note = noteReverseCharge
	default:
		res.Regime = RegimeEUB2C
		res.VATRate = supplierRate
	}

	res.VATAmount = Round2(res.Subtotal * res.VATRate / 100)
	res.IRPFAmount = Round2(res.Subtotal * res.IRPFRate / 100)
	res.Total = Round2(res.Subtotal + res.VATAmount - res.IRPFAmount)

	return res, nil
}

// withholdsIRPF: удержание делает клиент-организация, если исполнитель самозанятый.
func (c *Calculator) withholdsIRPF(supplier, customer Party, country string) bool {
	return country == c.rates.IRPF.Country && !supplier.IsBusiness && customer.IsBusiness
}

// Round2 округляет до центов, половину от нуля.
func Round2(v float64) float64 {
	shifted := v * 100
	if shifted >= 0 {
		shifted += 1e-9
	} else {
		shifted -= 1e-9
	}
	return math.Round(shifted) / 100
}

func normalizeCountry(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	// В VIES Греция обозначается как EL.
	if code == "EL" {
		return "GR"
	}
	return code
}
