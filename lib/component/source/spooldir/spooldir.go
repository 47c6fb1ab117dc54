package spooldir

import (
	"bufio"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"sync"
	"time"

	"cirrus/cirrus"
	"cirrus/lib/component"
	"cirrus/lib/log"
	"cirrus/lib/properties"
	"cirrus/pkg/datasource"
	"cirrus/pkg/payload"

	"github.com/fsnotify/fsnotify"
	"github.com/panjf2000/ants/v2"
	"github.com/pkg/errors"
	"github.com/spf13/cast"
)

var (
	ScanProperty       = properties.NewRequiredProperty[string]("scan", "watch this dir for payload files, one payload per line")
	BackupProperty     = properties.NewProperty[string]("backup", "if backup is empty, remove file after combine", "")
	PatternProperty    = properties.NewProperty[string]("pattern", "regex pattern", `.*\.json$`)
	ConcurrentProperty = properties.NewProperty[int]("concurrent", "combine number", 1)
	MaxLineProperty    = properties.NewProperty[int]("max-line", "max payload line bytes", 64*1024*1024)
)

type source struct {
	ctx         cirrus.Context
	logger      cirrus.Logger
	scanDir     string
	backupDir   string
	maxLine     int
	pattern     *regexp.Regexp
	combinePool *ants.PoolWithFunc

	emitNext  cirrus.EmitNext
	combining sync.Map
	running   sync.WaitGroup
}

func (s *source) Open(ctx cirrus.Context) (err error) {
	s.ctx = ctx
	s.logger = log.Ctx(s.ctx)
	s.scanDir = ctx.Properties().GetString(ScanProperty)
	s.backupDir = ctx.Properties().GetString(BackupProperty)
	s.maxLine = ctx.Properties().GetInt(MaxLineProperty)

	s.pattern, err = regexp.Compile(ctx.Properties().GetString(PatternProperty))
	if err != nil {
		return err
	}

	s.combinePool, err = ants.NewPoolWithFunc(ctx.Properties().GetInt(ConcurrentProperty),
		func(arg interface{}) {
			defer s.running.Done()
			s.combine(cast.ToString(arg))
		},
		ants.WithLogger(&log.PoolLoggerWrapper{Logger: s.logger}),
		ants.WithPanicHandler(func(reason interface{}) {
			if reason != nil {
				s.logger.Errorw("combine panic.", "reason", reason)
			}
		}))
	return err
}

func (s *source) Close() error {
	s.running.Wait()
	s.combinePool.Release()
	return nil
}

func (s *source) PropertiesDef() cirrus.PropertiesDef {
	return cirrus.PropertiesDef{ScanProperty, BackupProperty, PatternProperty, ConcurrentProperty, MaxLineProperty}
}

func (s *source) Collect(emitNext cirrus.EmitNext) error {
	s.emitNext = emitNext
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err = watcher.Add(s.scanDir); err != nil {
		_ = watcher.Close()
		return err
	}
	if err := s.recoveryCombine(); err != nil {
		_ = watcher.Close()
		return err
	}
	for {
		select {
		case <-s.ctx.Done():
			return watcher.Close()
		case e := <-watcher.Events:
			if e.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				s.logger.Debugf("scan to new files:%s.", e.Name)
				if s.pattern.MatchString(e.Name) {
					s.submitCombine(e.Name)
				}
			}
		case err = <-watcher.Errors:
			s.logger.Warnw("watch file system failed.", "err", err)
		}
	}
}

func (s *source) submitCombine(filePath string) {
	// a file is combined once even if several events arrive for it
	if _, loaded := s.combining.LoadOrStore(filePath, struct{}{}); loaded {
		return
	}
	s.running.Add(1)
	if err := s.combinePool.Invoke(filePath); err != nil {
		s.running.Done()
		s.combining.Delete(filePath)
		s.logger.Errorw(fmt.Sprintf("submit %s combine task error, skip file.", filePath), "err", err)
	}
}

// recoveryCombine submits files already present before the watch started.
func (s *source) recoveryCombine() error {
	entries, err := os.ReadDir(s.scanDir)
	if err != nil {
		return err
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			names = append(names, filepath.Join(s.scanDir, entry.Name()))
		}
	}
	sort.Strings(names)
	for _, name := range names {
		if s.pattern.MatchString(name) {
			s.submitCombine(name)
		}
	}
	return nil
}

func (s *source) combine(filePath string) {
	defer s.combining.Delete(filePath)
	if err := s.waitStable(filePath); err != nil {
		s.logger.Debugw("file vanished before combine.", "path", filePath, "err", err)
		return
	}
	f, err := os.Open(filePath)
	if err != nil {
		s.logger.Errorw("open error, skip this file.", "path", filePath, "err", err)
		return
	}
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), s.maxLine)
	line := 0
	for scanner.Scan() {
		line++
		if len(scanner.Bytes()) == 0 {
			continue
		}
		p, err := payload.Unmarshal(scanner.Bytes())
		if err != nil {
			s.logger.Errorw("drop malformed payload.", "path", filePath, "line", line, "err", err)
			continue
		}
		p.DataSource = datasource.New(datasource.Payload, map[string]string{"file": filePath, "line": cast.ToString(line)})
		s.emitNext(p, nil)
	}
	_ = f.Close()
	if err := scanner.Err(); err != nil {
		s.logger.Errorw("read error, keep this file.", "path", filePath, "err", err)
		return
	}
	s.afterCombine(filePath)
}

// waitStable waits until the file size stops changing, writers append whole lines.
func (s *source) waitStable(filePath string) error {
	var last int64 = -1
	for {
		info, err := os.Stat(filePath)
		if err != nil {
			return err
		}
		if info.Size() == last {
			return nil
		}
		last = info.Size()
		select {
		case <-s.ctx.Done():
			return errors.New("context done")
		case <-time.After(50 * time.Millisecond):
		}
	}
}

func (s *source) afterCombine(filePath string) {
	if s.backupDir == "" {
		//remove file
		if err := os.Remove(filePath); err != nil {
			s.logger.Errorw("can't remove.", "path", filePath, "err", err)
			return
		}
	} else {
		//backup file
		backupPath := path.Join(s.backupDir, path.Base(filePath)+time.Now().Format(".20060102150405"))
		if err := os.Rename(filePath, backupPath); err != nil {
			s.logger.Errorw("can't rename", "path", filePath, "err", err)
			return
		}
	}
	s.logger.Debugf("after combine %s.", filePath)
}

func New() cirrus.Source {
	return &source{}
}

func init() {
	component.RegisterNewSourceFunc("spooldir", New)
}
