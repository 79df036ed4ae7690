package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/urfave/cli/v3"

	"github.com/cjgriscom/lib3mf/pkg/attachment"
	"github.com/cjgriscom/lib3mf/pkg/chunkstream"
	"github.com/cjgriscom/lib3mf/pkg/toolpath"
)

type dumpReport struct {
	Path     string      `json:"path"`
	Version  uint32      `json:"version"`
	Chunks   []dumpChunk `json:"chunks"`
	Verified bool        `json:"verified"`
}

type dumpChunk struct {
	Index            int         `json:"index"`
	Codec            string      `json:"codec"`
	PropsSize        uint32      `json:"props_size"`
	CompressedSize   uint32      `json:"compressed_size"`
	UncompressedSize uint32      `json:"uncompressed_size"`
	MD5              string      `json:"md5"`
	Entries          []dumpEntry `json:"entries"`
}

type dumpEntry struct {
	Key      uint32 `json:"key"`
	Type     string `json:"type"`
	Position uint32 `json:"position"`
	Size     uint32 `json:"size"`
	Length   int    `json:"length"`
}

func dumpCmd() *cli.Command {
	var (
		pkgDir string
		path   string
		verify bool
		asJSON bool
	)

	return &cli.Command{
		Name:  "dump",
		Usage: "Print the chunk and entry tables of a binary stream",
		Flags: []cli.Flag{
			packageFlag(&pkgDir),
			&cli.StringFlag{Name: "path", Usage: "attachment path of the binary stream (all streams when empty)", Destination: &path},
			&cli.BoolFlag{Name: "verify", Usage: "decompress every chunk and check its digest", Destination: &verify},
			jsonFlag(&asJSON),
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			store, err := attachment.OpenDir(pkgDir)
			if err != nil {
				return err
			}
			paths := []string{path}
			if path == "" {
				paths = streamPaths(store)
			}
			reports := make([]*dumpReport, 0, len(paths))
			for _, p := range paths {
				r, err := dumpStream(store, p, verify)
				if err != nil {
					return err
				}
				reports = append(reports, r)
			}
			if asJSON {
				return writeJSON(c.Root().Writer, reports)
			}
			for _, r := range reports {
				printDump(c.Root().Writer, r)
			}
			return nil
		},
	}
}

func streamPaths(store *attachment.DirStore) []string {
	var out []string
	for _, p := range store.Paths() {
		a, err := store.Find(p)
		if err != nil {
			continue
		}
		if isStream(a) {
			out = append(out, p)
		}
		_ = a.Close()
	}
	return out
}

func isStream(a *attachment.Attachment) bool {
	return a.RelationshipType == toolpath.RelationshipBinaryStream
}

func dumpStream(store attachment.Store, path string, verify bool) (*dumpReport, error) {
	a, err := store.Find(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = a.Close() }()

	r, err := chunkstream.Open(a.Data, chunkstream.ReaderOptions{CacheChunks: 1})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	rep := &dumpReport{Path: path, Version: r.Header().Version}
	for i := range r.ChunkCount() {
		desc, entries, err := r.Chunk(i)
		if err != nil {
			return nil, err
		}
		dc := dumpChunk{
			Index:            i,
			Codec:            desc.Codec().String(),
			PropsSize:        desc.CompressedPropsSize,
			CompressedSize:   desc.CompressedDataSize,
			UncompressedSize: desc.UncompressedDataSize,
			MD5:              hex.EncodeToString(desc.Checksum[:]),
		}
		for _, e := range entries {
			dc.Entries = append(dc.Entries, dumpEntry{
				Key:      chunkstream.MakeKey(uint32(i), e.EntryID),
				Type:     e.EntryType.String(),
				Position: e.PositionInChunk,
				Size:     e.SizeInBytes,
				Length:   e.Len(),
			})
		}
		rep.Chunks = append(rep.Chunks, dc)
	}
	if verify {
		if err := r.Verify(); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		rep.Verified = true
	}
	return rep, nil
}

func printDump(w io.Writer, r *dumpReport) {
	_, _ = fmt.Fprintf(w, "%s: version %d, %d chunks", r.Path, r.Version, len(r.Chunks))
	if r.Verified {
		_, _ = fmt.Fprint(w, ", verified")
	}
	_, _ = fmt.Fprintln(w)
	for _, c := range r.Chunks {
		_, _ = fmt.Fprintf(w, "  chunk %d: codec=%s props=%d compressed=%d uncompressed=%d md5=%s\n",
			c.Index, c.Codec, c.PropsSize, c.CompressedSize, c.UncompressedSize, c.MD5)
		for _, e := range c.Entries {
			_, _ = fmt.Fprintf(w, "    key=%-8d %-16s offset=%-8d bytes=%-8d len=%d\n", e.Key, e.Type, e.Position, e.Size, e.Length)
		}
	}
}
