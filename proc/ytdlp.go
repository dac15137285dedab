package proc

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/lrstanley/go-ytdlp"
)

// YTDLP is the Extractor backed by the yt-dlp binary.
type YTDLP struct {
	// Format is the yt-dlp format selector for downloads.
	Format string
	// ProgressEvery throttles progress callbacks.
	ProgressEvery time.Duration
}

func NewYTDLP() *YTDLP {
	return &YTDLP{
		Format:        "bestaudio[ext=m4a]/bestaudio",
		ProgressEvery: 250 * time.Millisecond,
	}
}

func (y *YTDLP) Info(ctx context.Context, link string) (*Metadata, error) {
	res, err := ytdlp.New().
		Print("%(title)s\t%(uploader)s\t%(duration)s\t%(thumbnail)s").
		NoPlaylist().
		NoWarnings().
		IgnoreConfig().
		Run(ctx, "--skip-download", link)
	if err != nil {
		if res != nil && strings.TrimSpace(res.Stderr) != "" {
			return nil, fmt.Errorf("%w: %s", err, lastLine(res.Stderr))
		}
		return nil, err
	}
	return parseInfoLine(res.Stdout)
}

// parseInfoLine reads the tab separated metadata yt-dlp printed. Fields yt-dlp
// could not fill come back as "NA" and are left empty.
func parseInfoLine(out string) (*Metadata, error) {
	for _, l := range strings.Split(strings.TrimSpace(out), "\n") {
		ps := strings.Split(strings.TrimRight(l, "\r"), "\t")
		if len(ps) < 4 {
			continue
		}
		m := &Metadata{
			Title:     naToEmpty(ps[0]),
			Uploader:  naToEmpty(ps[1]),
			Thumbnail: naToEmpty(ps[3]),
		}
		if secs, err := strconv.ParseFloat(naToEmpty(ps[2]), 64); err == nil && secs > 0 {
			m.Duration = time.Duration(secs * float64(time.Second))
		}
		return m, nil
	}
	return nil, errors.New("failed to parse metadata")
}

func (y *YTDLP) Download(ctx context.Context, link, dest string, progress func(DownloadProgress)) (string, error) {
	cmd := ytdlp.New().
		Format(y.Format).
		Output(dest + ".%(ext)s").
		NoPlaylist().
		NoWarnings().
		IgnoreConfig()

	if progress != nil {
		cmd = cmd.ProgressFunc(y.ProgressEvery, func(u ytdlp.ProgressUpdate) {
			progress(progressFromUpdate(u))
		})
	}

	res, err := cmd.Run(ctx, link)
	if err != nil {
		removePartials(dest)
		if res != nil && strings.TrimSpace(res.Stderr) != "" {
			return "", fmt.Errorf("%w: %s", err, lastLine(res.Stderr))
		}
		return "", err
	}
	return finalPath(dest)
}

func progressFromUpdate(u ytdlp.ProgressUpdate) DownloadProgress {
	p := DownloadProgress{
		Downloaded: int64(u.DownloadedBytes),
		Total:      int64(u.TotalBytes),
	}
	// Fragmented downloads have no byte total; extrapolate from fragments done
	if p.Total <= 0 && u.FragmentCount > 0 && u.FragmentIndex > 0 {
		p.Estimate = p.Downloaded * int64(u.FragmentCount) / int64(u.FragmentIndex)
	}
	return p
}

// finalPath finds the file yt-dlp wrote for dest, whatever extension it chose.
func finalPath(dest string) (string, error) {
	matches, err := filepath.Glob(dest + ".*")
	if err != nil {
		return "", err
	}
	for _, m := range matches {
		if strings.HasSuffix(m, ".part") || strings.HasSuffix(m, ".ytdl") {
			continue
		}
		if info, err := os.Stat(m); err == nil && info.Mode().IsRegular() {
			return m, nil
		}
	}
	return "", fmt.Errorf("yt-dlp finished but no file matches %s.*", filepath.Base(dest))
}

func naToEmpty(s string) string {
	s = strings.TrimSpace(s)
	if s == "NA" {
		return ""
	}
	return s
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}
