package function

import (
	"fmt"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/mat"
)

// Composite is the sum of its member functions. Parameters are exposed with an
// "f<i>." prefix naming the member, e.g. "f0.Height".
type Composite struct {
	members []Function
	offsets []int // first global parameter index of each member
	ties    []Tie // composite-level ties, indexed globally
	n       int
}

// NewComposite creates the sum of members.
func NewComposite(members ...Function) *Composite {
	c := &Composite{}
	for _, m := range members {
		c.Add(m)
	}
	return c
}

// Add appends a member and returns its index.
func (c *Composite) Add(f Function) int {
	c.members = append(c.members, f)
	c.offsets = append(c.offsets, c.n)
	c.n += f.NParams()
	c.ties = append(c.ties, make([]Tie, f.NParams())...)
	return len(c.members) - 1
}

// Members returns the number of member functions.
func (c *Composite) Members() int { return len(c.members) }

// Member returns member i.
func (c *Composite) Member(i int) Function { return c.members[i] }

// local maps a global parameter index to (member, member-local index).
func (c *Composite) local(i int) (int, int) {
	for m := len(c.offsets) - 1; m >= 0; m-- {
		if i >= c.offsets[m] {
			return m, i - c.offsets[m]
		}
	}
	panic(fmt.Sprintf("function: parameter index %d out of range", i))
}

func (c *Composite) Name() string {
	names := make([]string, len(c.members))
	for i, m := range c.members {
		names[i] = m.Name()
	}
	return "Composite(" + strings.Join(names, "+") + ")"
}

func (c *Composite) NParams() int { return c.n }

func (c *Composite) ParameterName(i int) string {
	m, j := c.local(i)
	return fmt.Sprintf("f%d.%s", m, c.members[m].ParameterName(j))
}

func (c *Composite) ParameterIndex(name string) (int, error) {
	prefix, local, ok := strings.Cut(name, ".")
	if !ok || !strings.HasPrefix(prefix, "f") {
		return -1, fmt.Errorf("%w: %q", ErrUnknownParameter, name)
	}
	m, err := strconv.Atoi(prefix[1:])
	if err != nil || m < 0 || m >= len(c.members) {
		return -1, fmt.Errorf("%w: %q", ErrUnknownParameter, name)
	}
	j, err := c.members[m].ParameterIndex(local)
	if err != nil {
		return -1, fmt.Errorf("%w: %q", ErrUnknownParameter, name)
	}
	return c.offsets[m] + j, nil
}

func (c *Composite) Parameter(i int) float64 {
	m, j := c.local(i)
	return c.members[m].Parameter(j)
}

func (c *Composite) SetParameter(i int, v float64) {
	m, j := c.local(i)
	c.members[m].SetParameter(j, v)
}

func (c *Composite) Error(i int) float64 {
	m, j := c.local(i)
	return c.members[m].Error(j)
}

func (c *Composite) SetError(i int, e float64) {
	m, j := c.local(i)
	c.members[m].SetError(j, e)
}

func (c *Composite) Fix(i int) {
	m, j := c.local(i)
	c.members[m].Fix(j)
}

func (c *Composite) Unfix(i int) {
	m, j := c.local(i)
	c.members[m].Unfix(j)
}

func (c *Composite) IsFixed(i int) bool {
	m, j := c.local(i)
	return c.members[m].IsFixed(j)
}

// Tie binds global parameter i. The tie receives the composite, so it can
// refer to any member's parameters by their prefixed names.
func (c *Composite) Tie(i int, tie Tie) { c.ties[i] = tie }

func (c *Composite) RemoveTie(i int) {
	c.ties[i] = nil
	m, j := c.local(i)
	c.members[m].RemoveTie(j)
}

func (c *Composite) IsTied(i int) bool {
	if c.ties[i] != nil {
		return true
	}
	m, j := c.local(i)
	return c.members[m].IsTied(j)
}

func (c *Composite) IsActive(i int) bool {
	if c.ties[i] != nil {
		return false
	}
	m, j := c.local(i)
	return c.members[m].IsActive(j)
}

func (c *Composite) ApplyTies() {
	for _, m := range c.members {
		m.ApplyTies()
	}
	for i, tie := range c.ties {
		if tie != nil {
			c.SetParameter(i, tie(c))
		}
	}
}

func (c *Composite) Function1D(out, x []float64) {
	for j := range out {
		out[j] = 0
	}
	tmp := make([]float64, len(x))
	for _, m := range c.members {
		m.Function1D(tmp, x)
		for j, v := range tmp {
			out[j] += v
		}
	}
}

// FunctionDeriv1D assembles member jacobians column block by column block.
func (c *Composite) FunctionDeriv1D(jac *mat.Dense, x []float64) {
	for k, m := range c.members {
		np := m.NParams()
		if np == 0 {
			continue
		}
		block := jac.Slice(0, len(x), c.offsets[k], c.offsets[k]+np).(*mat.Dense)
		Jacobian(m, x, block)
	}
}

func (c *Composite) Clone() Function {
	clone := &Composite{
		members: make([]Function, len(c.members)),
		offsets: append([]int(nil), c.offsets...),
		ties:    append([]Tie(nil), c.ties...),
		n:       c.n,
	}
	for i, m := range c.members {
		clone.members[i] = m.Clone()
	}
	return clone
}
