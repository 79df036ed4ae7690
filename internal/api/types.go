package api

import "github.com/cjgriscom/lib3mf/pkg/toolpath"

type ResponseError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Param   string `json:"param,omitempty"`
}

type ProfileInfo struct {
	UUID       string  `json:"uuid"`
	Name       string  `json:"name"`
	LaserPower float64 `json:"laser_power"`
	LaserSpeed float64 `json:"laser_speed"`
	LaserFocus float64 `json:"laser_focus"`
	LaserIndex uint32  `json:"laser_index"`
}

type LayerInfo struct {
	Index int    `json:"index"`
	Path  string `json:"path"`
	ZMax  uint32 `json:"zmax"`
}

// ToolpathResponse is returned by GET /v1/toolpath.
type ToolpathResponse struct {
	UnitFactor float64       `json:"unit_factor"`
	Profiles   []ProfileInfo `json:"profiles"`
	Layers     []LayerInfo   `json:"layers"`
}

type SegmentInfo struct {
	Index       int    `json:"index"`
	Type        string `json:"type"`
	ProfileUUID string `json:"profile_uuid"`
	PartUUID    string `json:"part_uuid"`
	PointCount  int    `json:"point_count"`
}

// LayerResponse is returned by GET /v1/layers/:index.
type LayerResponse struct {
	LayerInfo
	PointCount int            `json:"point_count"`
	Segments   []SegmentInfo  `json:"segments"`
	ByType     map[string]int `json:"by_type"`
	Warnings   []string       `json:"warnings,omitempty"`
}

// SegmentResponse is returned by GET /v1/layers/:index/segments/:segment.
// Points are in layer units unless units=model was requested.
type SegmentResponse struct {
	SegmentInfo
	Units  string       `json:"units"`
	Points [][2]float64 `json:"points"`
}

func profileInfo(p *toolpath.Profile) ProfileInfo {
	return ProfileInfo{
		UUID:       p.UUID.String(),
		Name:       p.Name,
		LaserPower: p.LaserPower,
		LaserSpeed: p.LaserSpeed,
		LaserFocus: p.LaserFocus,
		LaserIndex: p.LaserIndex,
	}
}

func segmentInfo(d *toolpath.ReadData, i int) (SegmentInfo, error) {
	s, err := d.SegmentInfo(i)
	if err != nil {
		return SegmentInfo{}, err
	}
	profile, err := d.SegmentProfileUUID(i)
	if err != nil {
		return SegmentInfo{}, err
	}
	part, err := d.SegmentPartUUID(i)
	if err != nil {
		return SegmentInfo{}, err
	}
	return SegmentInfo{
		Index:       i,
		Type:        s.Type.String(),
		ProfileUUID: profile.String(),
		PartUUID:    part.String(),
		PointCount:  s.PointCount,
	}, nil
}
