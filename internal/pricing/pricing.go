// Package pricing contém a tabela de preços por zona usada no cálculo
// de ganhos dos motoristas.
package pricing

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"strings"
)

// ErrBadConfig indica tabela de preços ausente ou malformada. O cálculo
// de ganhos nunca assume zero silenciosamente: configuração inválida é
// sempre um erro imediato.
var ErrBadConfig = errors.New("invalid pricing configuration")

// Tier é uma faixa de distância com valor fixo em centavos.
// Faixas são configuradas em ordem crescente de MaxKm.
type Tier struct {
	MaxKm    float64
	Centavos int64
}

// Table é a tabela de preços carregada da configuração externa.
// Zonas de tarifa fixa cobrem cidades-satélite; zonas metropolitanas
// usam faixas por distância a partir da origem da rota.
type Table struct {
	FlatZones           map[string]int64
	MetroZones          map[string][]Tier
	DefaultCentavos     int64
	FailedAttemptFactor float64
}

// Normalize normaliza o nome de uma zona para busca: minúsculas e sem
// espaços nas bordas.
func Normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// FlatAmount retorna o valor fixo configurado para a zona, se houver.
func (t *Table) FlatAmount(zone string) (int64, bool) {
	v, ok := t.FlatZones[Normalize(zone)]
	return v, ok
}

// Tiers retorna as faixas de distância da zona metropolitana, se houver.
func (t *Table) Tiers(zone string) ([]Tier, bool) {
	v, ok := t.MetroZones[Normalize(zone)]
	return v, ok
}

// Validate verifica a consistência da tabela carregada.
func (t *Table) Validate() error {
	if t == nil {
		return fmt.Errorf("%w: nil table", ErrBadConfig)
	}
	if t.DefaultCentavos <= 0 {
		return fmt.Errorf("%w: default amount must be positive", ErrBadConfig)
	}
	if t.FailedAttemptFactor < 0 || t.FailedAttemptFactor > 1 {
		return fmt.Errorf("%w: failed attempt factor must be within [0, 1]", ErrBadConfig)
	}
	for zone, amount := range t.FlatZones {
		if amount <= 0 {
			return fmt.Errorf("%w: flat zone %q has non-positive amount", ErrBadConfig, zone)
		}
	}
	for zone, tiers := range t.MetroZones {
		if len(tiers) == 0 {
			return fmt.Errorf("%w: metro zone %q has no tiers", ErrBadConfig, zone)
		}
		prev := 0.0
		for i, tier := range tiers {
			if tier.MaxKm <= prev {
				return fmt.Errorf("%w: metro zone %q tiers must be strictly ascending", ErrBadConfig, zone)
			}
			if tier.Centavos <= 0 {
				return fmt.Errorf("%w: metro zone %q tier %d has non-positive amount", ErrBadConfig, zone, i)
			}
			prev = tier.MaxKm
		}
	}
	return nil
}

type tierFile struct {
	MaxKm  float64 `json:"max_km"`
	Amount float64 `json:"amount"`
}

type tableFile struct {
	Default             float64               `json:"default"`
	FailedAttemptFactor float64               `json:"failed_attempt_factor"`
	FlatZones           map[string]float64    `json:"flat_zones"`
	MetroZones          map[string][]tierFile `json:"metro_zones"`
}

// toCentavos converte um valor em reais da configuração para centavos.
func toCentavos(v float64) int64 {
	return int64(math.Round(v * 100))
}

// Load lê a tabela de preços de um arquivo JSON e a valida.
func Load(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read %q: %v", ErrBadConfig, path, err)
	}
	return Parse(data)
}

// Parse decodifica e valida uma tabela de preços em JSON.
func Parse(data []byte) (*Table, error) {
	var f tableFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrBadConfig, err)
	}

	t := &Table{
		FlatZones:           make(map[string]int64, len(f.FlatZones)),
		MetroZones:          make(map[string][]Tier, len(f.MetroZones)),
		DefaultCentavos:     toCentavos(f.Default),
		FailedAttemptFactor: f.FailedAttemptFactor,
	}

	for zone, amount := range f.FlatZones {
		t.FlatZones[Normalize(zone)] = toCentavos(amount)
	}
	for zone, tiers := range f.MetroZones {
		converted := make([]Tier, 0, len(tiers))
		for _, tier := range tiers {
			converted = append(converted, Tier{
				MaxKm:    tier.MaxKm,
				Centavos: toCentavos(tier.Amount),
			})
		}
		t.MetroZones[Normalize(zone)] = converted
	}

	if err := t.Validate(); err != nil {
		return nil, err
	}

	return t, nil
}
