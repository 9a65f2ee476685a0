package runspec

import (
	"strconv"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
	"github.com/fine-structures/qlm.SDK/libqlm/lattice"
	"github.com/fine-structures/qlm.SDK/qlm"
	"github.com/pkg/errors"
)

// RunExpr is a one-line description of a run, e.g.
//
//	2x2x2 fermions ws(0,0,0) pos(0) neg(7) J=-1 lambda=-3 level=8 eig=4 seed(3816540)
type RunExpr struct {
	Dims    string    `@Dims`
	Options []*Option `@@*`
}

type Option struct {
	Statistics string    `  @( "fermions" | "bosons" )`
	List       *ListOpt  `| @@`
	Param      *ParamOpt `| @@`
}

type ListOpt struct {
	Name   string   `@( "pos" | "neg" | "ws" | "seed" )`
	Values []string `"(" ( @Number ( "," @Number )* )? ")"`
}

type ParamOpt struct {
	Name  string `@( "J" | "lambda" | "level" | "eig" | "maxstates" )`
	Value string `"=" @Number`
}

var sRunLexer = lexer.MustSimple([]lexer.SimpleRule{
	{"Dims", `\d+(?:x\d+)+`},
	{"Number", `[-+]?\d+(?:\.\d+)?(?:[eE][-+]?\d+)?`},
	{"Ident", `[A-Za-z_]\w*`},
	{"Punct", `[(),=]`},
	{"whitespace", `\s+`},
})

var sParseRunExpr = participle.MustBuild[RunExpr](
	participle.Lexer(sRunLexer),
)

// RunSpec is a parsed and validated run expression.
type RunSpec struct {
	Sizes      []int
	Statistics qlm.Statistics
	Winding    []int // physical winding of the selected sector (nil: every sector)
	Charges    qlm.StaticCharges
	Seeds      []qlm.State
	J          float64
	Lambda     float64
	MaxLevel   int
	MaxStates  int64
	NumEigen   int
}

// Parse reads a run expression. Unset parameters take their defaults: fermions, J=1, lambda=0, eig=1.
func Parse(expr string) (*RunSpec, error) {
	parsed, err := sParseRunExpr.ParseString("", expr)
	if err != nil {
		return nil, errors.Wrap(qlm.ErrBadRunSpec, err.Error())
	}

	rs := &RunSpec{
		Statistics: qlm.Fermions,
		J:          1,
		NumEigen:   1,
	}
	for _, dim := range strings.Split(parsed.Dims, "x") {
		L, err := strconv.Atoi(dim)
		if err != nil {
			return nil, errors.Wrapf(qlm.ErrBadRunSpec, "lattice size %q", dim)
		}
		rs.Sizes = append(rs.Sizes, L)
	}

	seen := make(map[string]bool)
	for _, opt := range parsed.Options {
		var name string
		switch {
		case opt.Statistics != "":
			name = "statistics"
		case opt.List != nil:
			name = opt.List.Name
		case opt.Param != nil:
			name = opt.Param.Name
		}
		if seen[name] {
			return nil, errors.Wrapf(qlm.ErrBadRunSpec, "%s given twice", name)
		}
		seen[name] = true

		switch {
		case opt.Statistics != "":
			if rs.Statistics, err = qlm.ParseStatistics(opt.Statistics); err != nil {
				return nil, errors.Wrap(qlm.ErrBadRunSpec, err.Error())
			}
		case opt.List != nil:
			err = rs.applyList(opt.List)
		case opt.Param != nil:
			err = rs.applyParam(opt.Param)
		}
		if err != nil {
			return nil, err
		}
	}

	if rs.Winding != nil && len(rs.Winding) != len(rs.Sizes) {
		return nil, errors.Wrapf(qlm.ErrBadRunSpec, "ws needs %d values", len(rs.Sizes))
	}
	return rs, nil
}

func (rs *RunSpec) applyList(list *ListOpt) error {
	if list.Name == "seed" {
		for _, str := range list.Values {
			s, err := qlm.ParseState(str)
			if err != nil {
				return errors.Wrap(qlm.ErrBadRunSpec, err.Error())
			}
			rs.Seeds = append(rs.Seeds, s)
		}
		return nil
	}

	ints := make([]int, len(list.Values))
	for i, str := range list.Values {
		v, err := strconv.Atoi(str)
		if err != nil {
			return errors.Wrapf(qlm.ErrBadRunSpec, "%s: %q is not an integer", list.Name, str)
		}
		ints[i] = v
	}
	switch list.Name {
	case "pos":
		rs.Charges.Positive = ints
	case "neg":
		rs.Charges.Negative = ints
	case "ws":
		rs.Winding = ints
	}
	return nil
}

func (rs *RunSpec) applyParam(param *ParamOpt) error {
	switch param.Name {
	case "J", "lambda":
		v, err := strconv.ParseFloat(param.Value, 64)
		if err != nil {
			return errors.Wrapf(qlm.ErrBadRunSpec, "%s=%s", param.Name, param.Value)
		}
		if param.Name == "J" {
			rs.J = v
		} else {
			rs.Lambda = v
		}
	default:
		v, err := strconv.ParseInt(param.Value, 10, 64)
		if err != nil || v < 0 {
			return errors.Wrapf(qlm.ErrBadRunSpec, "%s=%s needs a non-negative integer", param.Name, param.Value)
		}
		switch param.Name {
		case "level":
			rs.MaxLevel = int(v)
		case "eig":
			rs.NumEigen = int(v)
		case "maxstates":
			rs.MaxStates = v
		}
	}
	return nil
}

// SizeTag returns the lattice size tag, e.g. "2x2x2".
func (rs *RunSpec) SizeTag() string {
	return lattice.SizeTag(rs.Sizes)
}

// Sector returns the selected sector of lat, or nil if the run covers every sector.
func (rs *RunSpec) Sector(lat *lattice.Lattice) (*qlm.Sector, error) {
	if rs.Winding == nil {
		return nil, nil
	}
	sec, err := lat.SectorForWinding(rs.Winding, rs.Charges.BackgroundLabel())
	if err != nil {
		return nil, err
	}
	return &sec, nil
}

// String renders rs as a run expression that parses back to the same RunSpec.
func (rs *RunSpec) String() string {
	var b strings.Builder
	b.WriteString(rs.SizeTag())
	b.WriteByte(' ')
	b.WriteString(rs.Statistics.String())

	writeList := func(name string, vals []string) {
		b.WriteString(" " + name + "(" + strings.Join(vals, ",") + ")")
	}
	itoa := func(ints []int) []string {
		strs := make([]string, len(ints))
		for i, v := range ints {
			strs[i] = strconv.Itoa(v)
		}
		return strs
	}
	if rs.Winding != nil {
		writeList("ws", itoa(rs.Winding))
	}
	if len(rs.Charges.Positive) > 0 {
		writeList("pos", itoa(rs.Charges.Positive))
	}
	if len(rs.Charges.Negative) > 0 {
		writeList("neg", itoa(rs.Charges.Negative))
	}
	b.WriteString(" J=" + strconv.FormatFloat(rs.J, 'g', -1, 64))
	if rs.Lambda != 0 {
		b.WriteString(" lambda=" + strconv.FormatFloat(rs.Lambda, 'g', -1, 64))
	}
	if rs.MaxLevel != 0 {
		b.WriteString(" level=" + strconv.Itoa(rs.MaxLevel))
	}
	if rs.MaxStates != 0 {
		b.WriteString(" maxstates=" + strconv.FormatInt(rs.MaxStates, 10))
	}
	b.WriteString(" eig=" + strconv.Itoa(rs.NumEigen))
	if len(rs.Seeds) > 0 {
		seeds := make([]string, len(rs.Seeds))
		for i, s := range rs.Seeds {
			seeds[i] = s.String()
		}
		writeList("seed", seeds)
	}
	return b.String()
}
