// Copyright 2024 Dominik Honnef and contributors
// SPDX-License-Identifier: Apache-2.0 OR MIT

package wgpu_engine

import (
	"time"

	"honnef.co/go/bsurf/profiler"
)

// Profiler records nested wall-clock spans. A nil *Profiler, and the nil
// groups it hands out, record nothing.
type Profiler struct {
	// started groups that haven't been collected yet
	groups []*ProfilerGroup
	// free list of profiler groups
	freeGroups []*ProfilerGroup
	// slice to reuse for the next call to Collect
	results []ProfilerResult
}

func NewProfiler() *Profiler {
	return &Profiler{}
}

func NewNopProfiler() *Profiler {
	return nil
}

func (p *Profiler) Start(tag uint64) *ProfilerGroup {
	if p == nil {
		return nil
	}

	g := p.getGroup()
	g.profiler = p
	g.Tag = tag
	g.cpuStart = time.Now()
	p.groups = append(p.groups, g)
	return g
}

func (p *Profiler) getGroup() *ProfilerGroup {
	if len(p.freeGroups) > 0 {
		g := p.freeGroups[len(p.freeGroups)-1]
		p.freeGroups = p.freeGroups[:len(p.freeGroups)-1]
		clear(g.children)
		g.children = g.children[:0]
		g.Label = ""
		g.parent = nil
		g.cpuEnd = time.Time{}
		return g
	} else {
		return &ProfilerGroup{}
	}
}

type ProfilerGroup struct {
	Tag      uint64
	Label    string
	cpuStart time.Time
	cpuEnd   time.Time
	children []*ProfilerGroup
	profiler *Profiler
	parent   *ProfilerGroup
}

func (g *ProfilerGroup) End() {
	if g == nil {
		return
	}
	if !g.cpuEnd.IsZero() {
		panic("trying to end same group twice")
	}
	g.cpuEnd = time.Now()
}

// TODO(dh): having both Start and Nest sucks, but we need Start to implement
// profiler.ProfileGroup, and we need the interface so packages don't need a
// direct dependency on the engine.

func (g *ProfilerGroup) Start(label string) profiler.ProfilerGroup {
	if g == nil {
		return (*ProfilerGroup)(nil)
	}
	return g.Nest(label)
}

func (g *ProfilerGroup) Nest(label string) *ProfilerGroup {
	if g == nil {
		return nil
	}
	cg := g.profiler.getGroup()
	cg.profiler = g.profiler
	cg.Label = label
	cg.cpuStart = time.Now()
	cg.parent = g
	g.children = append(g.children, cg)
	return cg
}

type ProfilerResult struct {
	Tag      uint64
	Label    string
	CPUStart time.Time
	CPUEnd   time.Time
	Children []ProfilerResult
}

func (r *ProfilerResult) Duration() time.Duration {
	return r.CPUEnd.Sub(r.CPUStart)
}

func (p *Profiler) populateResult(g *ProfilerGroup, res *ProfilerResult) {
	// Don't use *res = ProfilerResult{...} so that we reuse res.Children.
	res.Tag = g.Tag
	res.Label = g.Label
	res.CPUStart = g.cpuStart
	res.CPUEnd = g.cpuEnd
	if cap(res.Children) >= len(g.children) {
		res.Children = res.Children[:len(g.children)]
	} else {
		res.Children = make([]ProfilerResult, len(g.children))
	}
	for ci, c := range g.children {
		p.populateResult(c, &res.Children[ci])
	}
}

// Collect returns the results of all ended top-level groups, in order of
// creation. The return value is only valid until the next call to Collect.
func (p *Profiler) Collect() []ProfilerResult {
	if p == nil {
		return nil
	}
	out := p.results[:0]

	var returnGroups func(gs ...*ProfilerGroup)
	returnGroups = func(gs ...*ProfilerGroup) {
		p.freeGroups = append(p.freeGroups, gs...)
		for _, g := range gs {
			returnGroups(g.children...)
		}
	}

	n := 0
	for _, g := range p.groups {
		if g.cpuEnd.IsZero() {
			// We stop at the first running group so that we return groups in
			// order of creation.
			break
		}
		if cap(out) > len(out) {
			out = out[:len(out)+1]
		} else {
			out = append(out, ProfilerResult{})
		}
		p.populateResult(g, &out[len(out)-1])
		n++
	}
	returnGroups(p.groups[:n]...)
	copy(p.groups, p.groups[n:])
	clear(p.groups[len(p.groups)-n:])
	p.groups = p.groups[:len(p.groups)-n]
	p.results = out[:0]
	return out
}
