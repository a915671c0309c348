package points

import "sort"

// Tier описывает ступень программы лояльности.
type Tier struct {
	Name      string
	MinPoints int64
}

// Ladder содержит ступени по возрастанию порога.
type Ladder []Tier

// DefaultLadder содержит ступени программы лояльности продавцов.
var DefaultLadder = Ladder{
	{Name: "BRONZE", MinPoints: 1_000},
	{Name: "SILVER", MinPoints: 5_000},
	{Name: "GOLD", MinPoints: 15_000},
	{Name: "PLATINUM", MinPoints: 50_000},
	{Name: "DIAMOND", MinPoints: 100_000},
}

// Crossed возвращает ступени, пороги которых пройдены при переходе баланса
// от before к after: before < MinPoints <= after. Ступени возвращаются по возрастанию порога.
func (l Ladder) Crossed(before, after int64) []Tier {
	if after <= before {
		return nil
	}

	sorted := make(Ladder, len(l))
	copy(sorted, l)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].MinPoints < sorted[j].MinPoints })

	var res []Tier
	for _, t := range sorted {
		if before < t.MinPoints && t.MinPoints <= after {
			res = append(res, t)
		}
	}
	return res
}
