package pricing

import (
	"fmt"
	"math"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// Unit identifies what a metered operation is priced per
type Unit string

const (
	UnitCall     Unit = "call"      // flat price per invocation
	UnitMinute   Unit = "minute"    // audio/video duration
	UnitGigabyte Unit = "gigabyte"  // stored or transferred bytes
	UnitKiloChar Unit = "kilochar"  // text analytics, per 1000 characters
	UnitKiloTok  Unit = "kilotoken" // embeddings, per 1000 tokens
)

// Price is the cost of one unit of a metered operation
type Price struct {
	Unit           Unit  `yaml:"unit"`
	UnitPriceCents int64 `yaml:"unit_price_cents"`
}

// Table maps (service, operation) to a unit price. It is loaded once at
// process start and never mutated, so reads need no locking.
type Table struct {
	services map[string]map[string]Price
}

// tableFile is the YAML shape of the price table artifact
type tableFile struct {
	Services map[string]struct {
		Operations map[string]Price `yaml:"operations"`
	} `yaml:"services"`
}

// Load reads a price table from a YAML file
func Load(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read price table: %w", err)
	}
	return Parse(data)
}

// Parse builds a price table from YAML bytes
func Parse(data []byte) (*Table, error) {
	var file tableFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse price table: %w", err)
	}
	if len(file.Services) == 0 {
		return nil, fmt.Errorf("price table defines no services")
	}

	t := &Table{services: make(map[string]map[string]Price, len(file.Services))}
	for svc, entry := range file.Services {
		if len(entry.Operations) == 0 {
			return nil, fmt.Errorf("service %q defines no operations", svc)
		}
		ops := make(map[string]Price, len(entry.Operations))
		for op, price := range entry.Operations {
			if price.UnitPriceCents < 0 {
				return nil, fmt.Errorf("negative unit price for %s/%s", svc, op)
			}
			if price.Unit == "" {
				return nil, fmt.Errorf("missing unit for %s/%s", svc, op)
			}
			ops[op] = price
		}
		t.services[svc] = ops
	}
	return t, nil
}

// Lookup returns the unit price for a (service, operation) pair.
// A miss is a configuration defect, not an error: callers price the
// operation at zero and log it.
func (t *Table) Lookup(service, operation string) (Price, bool) {
	ops, ok := t.services[service]
	if !ok {
		return Price{}, false
	}
	price, ok := ops[operation]
	return price, ok
}

// Cost returns the price in cents of consuming the given number of units,
// rounded up so estimates never undercount. The second return is false on
// a table miss, in which case the cost is zero.
func (t *Table) Cost(service, operation string, units float64) (int64, bool) {
	price, ok := t.Lookup(service, operation)
	if !ok {
		return 0, false
	}
	if units <= 0 {
		return 0, true
	}
	return int64(math.Ceil(units * float64(price.UnitPriceCents))), true
}

// Services returns the sorted service names in the table
func (t *Table) Services() []string {
	names := make([]string, 0, len(t.services))
	for name := range t.services {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Operations returns the sorted operation names for a service
func (t *Table) Operations(service string) []string {
	ops := t.services[service]
	names := make([]string, 0, len(ops))
	for name := range ops {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
