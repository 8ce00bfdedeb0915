package restore

import (
	"fmt"
	"strings"
	"sync"
)

// Tier groups tables by their role in the schema. It only breaks ties
// between tables the dependency graph leaves unordered.
type Tier int

const (
	TierReference Tier = iota // lookup data: categories, tags
	TierOwner                 // user profiles
	TierEntity                // primary entities: products
	TierDependent             // rows hanging off entities
	TierLog                   // audit and notification logs
	TierSingleton             // configuration rows
)

var tierNames = [...]string{"reference", "owner", "entity", "dependent", "log", "singleton"}

func (t Tier) String() string {
	if t < 0 || int(t) >= len(tierNames) {
		return "unknown"
	}
	return tierNames[t]
}

// DefaultIDField is the identity column used when a definition leaves IDField empty.
const DefaultIDField = "id"

// Reference is a foreign-key edge: Column holds an identity of Table.
type Reference struct {
	Column string    `json:"column"`
	Table  TableName `json:"table"`
}

// TableDefinition describes how one table is restored.
type TableDefinition struct {
	Name       TableName
	Tier       Tier
	IDPolicy   IDPolicy
	IDField    string
	References []Reference
}

// Identity returns the identity column of the table.
func (d TableDefinition) Identity() string {
	if d.IDField == "" {
		return DefaultIDField
	}
	return d.IDField
}

// Catalog holds table definitions and derives the master dependency order.
type Catalog struct {
	mu    sync.RWMutex
	defs  map[TableName]TableDefinition
	seq   []TableName // registration order
	order []TableName // cached topological order
}

// NewCatalog creates a catalog holding the given definitions.
func NewCatalog(defs ...TableDefinition) (*Catalog, error) {
	c := &Catalog{defs: make(map[TableName]TableDefinition)}
	for _, def := range defs {
		if err := c.Register(def); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Register adds a table definition.
// Returns an error if a table with the same name is already registered.
func (c *Catalog) Register(def TableDefinition) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if def.Name == "" {
		return fmt.Errorf("table definition without a name")
	}
	if _, exists := c.defs[def.Name]; exists {
		return fmt.Errorf("table already registered: %s", def.Name)
	}

	c.defs[def.Name] = def
	c.seq = append(c.seq, def.Name)
	c.order = nil
	return nil
}

// Get returns a table definition by name.
func (c *Catalog) Get(name TableName) (TableDefinition, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	def, ok := c.defs[name]
	return def, ok
}

// Len returns the number of registered tables.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.defs)
}

// Definitions returns all definitions in master order.
func (c *Catalog) Definitions() ([]TableDefinition, error) {
	order, err := c.Order()
	if err != nil {
		return nil, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	defs := make([]TableDefinition, len(order))
	for i, name := range order {
		defs[i] = c.defs[name]
	}
	return defs, nil
}

// Order returns the master dependency order: every table comes after the
// tables it references. Among tables that are ready at the same time, the
// lower tier wins, then the earlier registration.
//
// Self references are ignored. A reference to an unregistered table or a
// cycle is an error.
func (c *Catalog) Order() ([]TableName, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.order != nil {
		return append([]TableName(nil), c.order...), nil
	}

	inDegree := make(map[TableName]int, len(c.defs))
	dependents := make(map[TableName][]TableName)
	for _, name := range c.seq {
		def := c.defs[name]
		seen := make(map[TableName]bool)
		for _, ref := range def.References {
			if ref.Table == name || seen[ref.Table] {
				continue
			}
			if _, ok := c.defs[ref.Table]; !ok {
				return nil, fmt.Errorf("table %s references unregistered table %s", name, ref.Table)
			}
			seen[ref.Table] = true
			inDegree[name]++
			dependents[ref.Table] = append(dependents[ref.Table], name)
		}
	}

	rank := make(map[TableName]int, len(c.seq))
	for i, name := range c.seq {
		rank[name] = i
	}
	less := func(a, b TableName) bool {
		ta, tb := c.defs[a].Tier, c.defs[b].Tier
		if ta != tb {
			return ta < tb
		}
		return rank[a] < rank[b]
	}

	var ready []TableName
	for _, name := range c.seq {
		if inDegree[name] == 0 {
			ready = append(ready, name)
		}
	}

	order := make([]TableName, 0, len(c.seq))
	for len(ready) > 0 {
		best := 0
		for i := 1; i < len(ready); i++ {
			if less(ready[i], ready[best]) {
				best = i
			}
		}
		name := ready[best]
		ready = append(ready[:best], ready[best+1:]...)
		order = append(order, name)

		for _, child := range dependents[name] {
			inDegree[child]--
			if inDegree[child] == 0 {
				ready = append(ready, child)
			}
		}
	}

	if len(order) < len(c.seq) {
		var stuck []string
		for _, name := range c.seq {
			if inDegree[name] > 0 {
				stuck = append(stuck, string(name))
			}
		}
		return nil, fmt.Errorf("dependency cycle between tables: %s", strings.Join(stuck, ", "))
	}

	c.order = order
	return append([]TableName(nil), order...), nil
}

var defaultCatalog = &Catalog{defs: make(map[TableName]TableDefinition)}

// Register adds a table definition to the default catalog.
// Panics if a table with the same name is already registered.
func Register(def TableDefinition) {
	if err := defaultCatalog.Register(def); err != nil {
		panic(err.Error())
	}
}

// DefaultCatalog returns the catalog populated by Register.
func DefaultCatalog() *Catalog {
	return defaultCatalog
}
