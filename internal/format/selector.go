// Package format picks a stream format from a video's available set
// according to the caller's selection policy. Pure functions, no I/O.
package format

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/ytsnap/ytsnap/internal/domain"
)

// Select picks one format. Policy, in order:
//
//  1. itag given: the unique match, or FormatNotFoundError.
//  2. quality given: among formats whose quality label matches, prefer
//     audio+video, then video-only, then audio-only; within a class the
//     largest content length wins. No match is an error naming the
//     requested quality and the available set — never a silent downgrade.
//  3. neither: the audio+video format with the highest resolution rank,
//     ties broken by largest content length.
func Select(formats []domain.StreamFormat, quality string, itag int) (domain.StreamFormat, error) {
	if len(formats) == 0 {
		return domain.StreamFormat{}, domain.ErrNoFormats
	}

	if itag != 0 {
		for _, f := range formats {
			if f.Itag == itag {
				return f, nil
			}
		}
		return domain.StreamFormat{}, &domain.FormatNotFoundError{
			Itag:      itag,
			Available: availableItags(formats),
		}
	}

	if quality != "" {
		matches := filter(formats, func(f domain.StreamFormat) bool {
			return f.QualityLabel == quality
		})
		if len(matches) == 0 {
			return domain.StreamFormat{}, &domain.FormatNotFoundError{
				Quality:   quality,
				Available: availableQualities(formats),
			}
		}
		return bestByClass(matches), nil
	}

	both := filter(formats, func(f domain.StreamFormat) bool {
		return f.HasVideo && f.HasAudio
	})
	if len(both) > 0 {
		return bestByRank(both), nil
	}
	return bestByRank(formats), nil
}

// bestByClass picks from formats sharing a quality label: audio+video beats
// video-only beats audio-only, then content length decides.
func bestByClass(formats []domain.StreamFormat) domain.StreamFormat {
	best := formats[0]
	for _, f := range formats[1:] {
		if classRank(f) > classRank(best) {
			best = f
			continue
		}
		if classRank(f) == classRank(best) && f.ContentLength > best.ContentLength {
			best = f
		}
	}
	return best
}

func classRank(f domain.StreamFormat) int {
	switch {
	case f.HasVideo && f.HasAudio:
		return 3
	case f.HasVideo:
		return 2
	default:
		return 1
	}
}

// bestByRank picks the highest numeric quality rank, ties broken by the
// largest content length.
func bestByRank(formats []domain.StreamFormat) domain.StreamFormat {
	best := formats[0]
	for _, f := range formats[1:] {
		fr, br := QualityRank(f.QualityLabel), QualityRank(best.QualityLabel)
		if fr > br || (fr == br && f.ContentLength > best.ContentLength) {
			best = f
		}
	}
	return best
}

// QualityRank parses a quality label like "720p" or "1080p60" into a
// comparable resolution metric. Unknown labels rank lowest.
func QualityRank(label string) int {
	i := strings.IndexFunc(label, func(r rune) bool { return r < '0' || r > '9' })
	if i == 0 {
		return 0
	}
	if i < 0 {
		i = len(label)
	}
	n, err := strconv.Atoi(label[:i])
	if err != nil {
		return 0
	}
	return n
}

func filter(formats []domain.StreamFormat, keep func(domain.StreamFormat) bool) []domain.StreamFormat {
	var out []domain.StreamFormat
	for _, f := range formats {
		if keep(f) {
			out = append(out, f)
		}
	}
	return out
}

func availableQualities(formats []domain.StreamFormat) []string {
	seen := make(map[string]bool)
	var out []string
	for _, f := range formats {
		if f.QualityLabel == "" || seen[f.QualityLabel] {
			continue
		}
		seen[f.QualityLabel] = true
		out = append(out, f.QualityLabel)
	}
	sort.Slice(out, func(i, j int) bool { return QualityRank(out[i]) < QualityRank(out[j]) })
	return out
}

func availableItags(formats []domain.StreamFormat) []string {
	out := make([]string, 0, len(formats))
	for _, f := range formats {
		out = append(out, fmt.Sprintf("itag %d", f.Itag))
	}
	return out
}
