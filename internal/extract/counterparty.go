package extract

import (
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/joseph-ayodele/invoice-pipeline/internal/entity"
)

type role int

const (
	roleNone role = iota
	roleSeller
	roleBuyer
)

// Seller labels in priority order; the index is the label's rank.
var sellerLabels = []string{"поставщик", "продавец", "исполнитель", "подрядчик", "получатель", "supplier", "seller", "vendor"}

var (
	reSellerLabel = regexp.MustCompile(`(?i)поставщик|продавец|исполнитель|подрядчик|получатель|supplier|seller|vendor`)
	reBuyerLabel  = regexp.MustCompile(`(?i)покупатель|заказчик|плательщик|грузополучатель|клиент|buyer|customer|bill\s+to`)

	reINNLabel   = regexp.MustCompile(`(?i)инн(?:\s*/\s*кпп)?[\s:№.]*(\d{12}|\d{10})(?:\s*/\s*(\d{9}))?`)
	reINNTrail   = regexp.MustCompile(`(?i)инн(?:\s*/\s*кпп)?[\s:№.]*$`)
	reINNLead    = regexp.MustCompile(`^(\d{12}|\d{10})(?:\s*/\s*(\d{9}))?`)
	reINNKPPBare = regexp.MustCompile(`(\d{12}|\d{10})\s*/\s*(\d{9})`)
	reKPPLabel   = regexp.MustCompile(`(?i)кпп[\s:№.]*(\d{9})`)

	reLegalForm = regexp.MustCompile(`(?:^|[^\p{L}])(ООО|АО|ЗАО|ПАО|ОАО|НАО|ИП|ГУП|МУП|Индивидуальный предприниматель|Общество с ограниченной ответственностью|Акционерное общество)(?:[^\p{L}]|$)`)
	reNameCut   = regexp.MustCompile(`(?i)[,;]|(?:^|[^\p{L}])(?:инн|кпп|огрн(?:ип)?|бик|р/с|р/сч|расч[её]тн\p{L}*|к/с|тел|телефон|e-?mail|адрес|юр\.|банк|в\s+лице|сч\.)(?:[^\p{L}]|$)|\d{6}\s*,|\d{9,}`)
	reNameLead  = regexp.MustCompile(`^[\s:.)\-–—(]+`)
	reJunkName  = regexp.MustCompile(`(?i)^(?:банк|инн|кпп|бик|сч[её]т|дата|руб|адрес|подпись|м\.п)`)

	reAddressLabel = regexp.MustCompile(`(?i)(?:^|[^\p{L}])(?:юридический\s+|почтовый\s+|фактический\s+)?адрес[^:]{0,20}:\s*(.+)`)
	rePostalIndex  = regexp.MustCompile(`(?:^|[^\d])(\d{6},\s*\S.*)`)
	reAddressCut   = regexp.MustCompile(`(?i)[;]|(?:^|[^\p{L}])(?:инн|кпп|огрн|тел|телефон|e-?mail|р/с|бик)(?:[^\p{L}]|$)`)

	quoteReplacer = strings.NewReplacer("«", `"`, "»", `"`, "“", `"`, "”", `"`, "„", `"`, "‟", `"`, "″", `"`, "''", `"`)
)

// segment is a span of a line attributed to a party role.
type segment struct {
	start, end int
	role       role
	rank       int
	labelEnd   int // -1 when the role was carried over from a previous line
}

type innHit struct {
	inn, kpp string
	role     role
	rank     int
	line     int
	pos      int
}

type parties struct {
	hits    []innHit
	name    string
	address string
	own     map[string]struct{}
}

type labelHit struct {
	start, end int
	role       role
	rank       int
}

func wholeWordMatches(re *regexp.Regexp, s string) [][]int {
	var out [][]int
	for _, loc := range re.FindAllStringIndex(s, -1) {
		if prevIsLetter(s, loc[0]) || nextIsLetter(s, loc[1]) {
			continue
		}
		out = append(out, loc)
	}
	return out
}

func lineLabels(line string) []labelHit {
	var hits []labelHit
	for _, loc := range wholeWordMatches(reSellerLabel, line) {
		word := strings.ToLower(line[loc[0]:loc[1]])
		rank := len(sellerLabels)
		for i, l := range sellerLabels {
			if l == word {
				rank = i
				break
			}
		}
		hits = append(hits, labelHit{start: loc[0], end: loc[1], role: roleSeller, rank: rank})
	}
	for _, loc := range wholeWordMatches(reBuyerLabel, line) {
		hits = append(hits, labelHit{start: loc[0], end: loc[1], role: roleBuyer})
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].start < hits[j].start })
	return hits
}

// roleSegments splits every line into role spans. A label's role covers the rest of its
// line and carries over up to three following lines, stopping at a blank line.
func (x *extraction) roleSegments() [][]segment {
	out := make([][]segment, len(x.lines))
	carry := segment{role: roleNone}
	carryLeft := 0
	for i, line := range x.lines {
		if line == "" {
			carryLeft = 0
			continue
		}
		labels := lineLabels(line)
		first := len(line)
		if len(labels) > 0 {
			first = labels[0].start
		}
		if first > 0 {
			s := segment{start: 0, end: first, role: roleNone, labelEnd: -1}
			if carryLeft > 0 {
				s.role, s.rank = carry.role, carry.rank
			}
			out[i] = append(out[i], s)
		}
		for k, l := range labels {
			end := len(line)
			if k+1 < len(labels) {
				end = labels[k+1].start
			}
			out[i] = append(out[i], segment{start: l.start, end: end, role: l.role, rank: l.rank, labelEnd: l.end})
		}
		switch {
		case len(labels) > 0:
			last := labels[len(labels)-1]
			carry = segment{role: last.role, rank: last.rank}
			carryLeft = 3
		case carryLeft > 0:
			carryLeft--
		}
	}
	return out
}

func segmentAt(segs []segment, pos int) segment {
	for _, s := range segs {
		if pos >= s.start && pos < s.end {
			return s
		}
	}
	return segment{role: roleNone, labelEnd: -1}
}

func (x *extraction) findParties() *parties {
	segs := x.roleSegments()
	p := &parties{own: x.own}
	seen := map[[2]int]bool{}

	add := func(line, pos int, inn, kpp string, seg segment) {
		key := [2]int{line, pos}
		if seen[key] {
			return
		}
		seen[key] = true
		p.hits = append(p.hits, innHit{inn: inn, kpp: kpp, role: seg.role, rank: seg.rank, line: line, pos: pos})
	}

	for i, line := range x.lines {
		for _, m := range reINNLabel.FindAllStringSubmatchIndex(line, -1) {
			if prevIsLetter(line, m[0]) || (m[3] < len(line) && isDigit(line[m[3]])) {
				continue
			}
			kpp := ""
			if m[4] >= 0 {
				kpp = line[m[4]:m[5]]
			}
			add(i, m[2], line[m[2]:m[3]], kpp, segmentAt(segs[i], m[0]))
		}
		for _, m := range reINNKPPBare.FindAllStringSubmatchIndex(line, -1) {
			if (m[0] > 0 && isDigit(line[m[0]-1])) || (m[1] < len(line) && isDigit(line[m[1]])) {
				continue
			}
			add(i, m[2], line[m[2]:m[3]], line[m[4]:m[5]], segmentAt(segs[i], m[0]))
		}
		if loc := reINNTrail.FindStringIndex(line); loc != nil && !prevIsLetter(line, loc[0]) && i+1 < len(x.lines) {
			next := x.lines[i+1]
			if m := reINNLead.FindStringSubmatchIndex(next); m != nil && (m[3] == len(next) || !isDigit(next[m[3]])) {
				kpp := ""
				if m[4] >= 0 {
					kpp = next[m[4]:m[5]]
				}
				add(i+1, m[2], next[m[2]:m[3]], kpp, segmentAt(segs[i], loc[0]))
			}
		}
	}
	sort.SliceStable(p.hits, func(a, b int) bool {
		if p.hits[a].line != p.hits[b].line {
			return p.hits[a].line < p.hits[b].line
		}
		return p.hits[a].pos < p.hits[b].pos
	})
	x.attachKPP(p, segs)

	p.name = x.findSellerName(segs)
	p.address = x.findSellerAddress(segs)
	return p
}

// attachKPP gives a labelled KPP to the closest preceding INN of the same role that lacks one.
func (x *extraction) attachKPP(p *parties, segs [][]segment) {
	for i, line := range x.lines {
		for _, m := range reKPPLabel.FindAllStringSubmatchIndex(line, -1) {
			if prevIsLetter(line, m[0]) || (m[3] < len(line) && isDigit(line[m[3]])) {
				continue
			}
			r := segmentAt(segs[i], m[0]).role
			for k := len(p.hits) - 1; k >= 0; k-- {
				h := &p.hits[k]
				if h.line > i || (h.line == i && h.pos > m[2]) {
					continue
				}
				if h.kpp == "" && (h.role == r || h.line == i) {
					h.kpp = line[m[2]:m[3]]
				}
				break
			}
		}
	}
}

func (p *parties) isOwn(inn string) bool {
	_, ok := p.own[inn]
	return ok
}

// seller picks the contractor's tax ID: the best-ranked labelled seller, then an
// unlabelled one, then any that is not the receiving company's.
func (p *parties) seller() *innHit {
	var best *innHit
	for i := range p.hits {
		h := &p.hits[i]
		if h.role == roleSeller && !p.isOwn(h.inn) && (best == nil || h.rank < best.rank) {
			best = h
		}
	}
	if best != nil {
		return best
	}
	for i := range p.hits {
		if h := &p.hits[i]; h.role == roleNone && !p.isOwn(h.inn) {
			return h
		}
	}
	for i := range p.hits {
		if h := &p.hits[i]; !p.isOwn(h.inn) {
			return h
		}
	}
	return nil
}

// allINNs lists every distinct tax ID, the contractor's first.
func (p *parties) allINNs() []string {
	out := []string{}
	if s := p.seller(); s != nil {
		out = append(out, s.inn)
	}
	for _, h := range p.hits {
		out = appendUnique(out, h.inn)
	}
	return out
}

func (p *parties) contractor() entity.Contractor {
	c := entity.Contractor{
		Name:    entity.StringPtr(p.name),
		AllINNs: p.allINNs(),
		Address: entity.StringPtr(p.address),
	}
	if s := p.seller(); s != nil {
		c.INN = entity.StringPtr(s.inn)
		c.KPP = entity.StringPtr(s.kpp)
	}
	return c
}

func (x *extraction) findSellerName(segs [][]segment) string {
	for rank := range sellerLabels {
		for i, line := range x.lines {
			for k, s := range segs[i] {
				if s.role != roleSeller || s.rank != rank || s.labelEnd < 0 {
					continue
				}
				name := cleanName(cutName(line[s.labelEnd:s.end]))
				if name == "" && k == len(segs[i])-1 && i+1 < len(x.lines) && len(lineLabels(x.lines[i+1])) == 0 {
					name = cleanName(cutName(x.lines[i+1]))
				}
				if name != "" {
					return name
				}
			}
		}
	}

	for i, line := range x.lines {
		for _, s := range segs[i] {
			if s.role == roleBuyer {
				continue
			}
			part := line[s.start:s.end]
			m := reLegalForm.FindStringSubmatchIndex(part)
			if m == nil {
				continue
			}
			if name := cleanName(cutName(part[m[2]:])); name != "" && utf8.RuneCountInString(name) > utf8.RuneCountInString(part[m[2]:m[3]]) {
				return name
			}
		}
	}
	return ""
}

func cutName(s string) string {
	s = reNameLead.ReplaceAllString(s, "")
	if loc := reNameCut.FindStringIndex(s); loc != nil {
		s = s[:loc[0]]
	}
	return s
}

// cleanName normalizes quotes and whitespace. It returns "" for text that is not a name.
func cleanName(s string) string {
	s = quoteReplacer.Replace(s)
	s = strings.Join(strings.Fields(s), " ")
	s = strings.Trim(s, " \t:;,.-–—_/\\|")
	if strings.Count(s, `"`)%2 == 1 {
		s = strings.Join(strings.Fields(strings.ReplaceAll(s, `"`, " ")), " ")
	}
	letters := 0
	for _, r := range s {
		if unicode.IsLetter(r) {
			letters++
		}
	}
	if letters < 2 || reJunkName.MatchString(s) {
		return ""
	}
	if r := []rune(s); len(r) > 160 {
		s = strings.TrimSpace(string(r[:160]))
	}
	return s
}

func (x *extraction) findSellerAddress(segs [][]segment) string {
	sellerText := func(i int) []string {
		var parts []string
		for _, s := range segs[i] {
			if s.role == roleSeller {
				parts = append(parts, x.lines[i][s.start:s.end])
			}
		}
		return parts
	}
	for i := range x.lines {
		for _, part := range sellerText(i) {
			if m := reAddressLabel.FindStringSubmatch(part); m != nil {
				if a := cleanAddress(m[1]); a != "" {
					return a
				}
			}
		}
	}
	for i := range x.lines {
		for _, part := range sellerText(i) {
			if m := rePostalIndex.FindStringSubmatch(part); m != nil {
				if a := cleanAddress(m[1]); a != "" {
					return a
				}
			}
		}
	}
	return ""
}

func cleanAddress(s string) string {
	if loc := reAddressCut.FindStringIndex(s); loc != nil {
		s = s[:loc[0]]
	}
	s = strings.Trim(strings.Join(strings.Fields(s), " "), " ,.;:")
	if !hasLetter(s) {
		return ""
	}
	return s
}
