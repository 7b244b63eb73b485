package pcat

import "pcat-go/internal/model"

// GroupDuplicates groups assets by content hash. Only hashes shared by at
// least two assets form a group. Groups are ordered by the first
// appearance of their hash and keep the input order within a group.
// Assets without a hash are ignored.
func GroupDuplicates(assets []*model.Asset) [][]*model.Asset {
	byHash := make(map[string][]*model.Asset)
	var order []string
	for _, a := range assets {
		if a.Hash == "" {
			continue
		}
		if _, seen := byHash[a.Hash]; !seen {
			order = append(order, a.Hash)
		}
		byHash[a.Hash] = append(byHash[a.Hash], a)
	}

	var groups [][]*model.Asset
	for _, h := range order {
		if g := byHash[h]; len(g) > 1 {
			groups = append(groups, g)
		}
	}
	return groups
}
