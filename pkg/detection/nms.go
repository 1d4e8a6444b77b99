package detection

import "sort"

// NonMaxSuppression greedily keeps the most confident box of every overlapping cluster.
// A candidate is dropped when its IoU with an already kept box exceeds iouThresh.
// With perClass false, boxes of different classes suppress each other.
func NonMaxSuppression(dets []Detection, iouThresh float64, perClass bool) []Detection {
	if len(dets) == 0 {
		return nil
	}

	order := make([]int, len(dets))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return dets[order[a]].Confidence > dets[order[b]].Confidence
	})

	kept := make([]Detection, 0, len(dets))
	for _, idx := range order {
		cand := dets[idx]
		suppressed := false
		for _, k := range kept {
			if perClass && k.ClassID != cand.ClassID {
				continue
			}
			if k.Box.IoU(cand.Box) > iouThresh {
				suppressed = true
				break
			}
		}
		if !suppressed {
			kept = append(kept, cand)
		}
	}
	return kept
}
