package script

import (
	"regexp"
	"strings"
)

// LayoutHelpers defines LayoutManager, the placement helper generated scripts
// may call: place moves a mobject to a named screen region, next_to sets it
// beside another.
const LayoutHelpers = `class LayoutManager:
    def __init__(self, scene):
        self.scene = scene
        self.objects = {}
        self.regions = {
            'TOP': UP * 3.5, 'CENTER': ORIGIN, 'BOTTOM': DOWN * 3.5,
            'LEFT': LEFT * 6, 'RIGHT': RIGHT * 6,
            'TOP_LEFT': UP * 3.5 + LEFT * 6, 'TOP_RIGHT': UP * 3.5 + RIGHT * 6,
            'BOTTOM_LEFT': DOWN * 3.5 + LEFT * 6, 'BOTTOM_RIGHT': DOWN * 3.5 + RIGHT * 6,
        }

    def place(self, mobject, region, buff=0.5):
        mobject.move_to(self.regions.get(region, ORIGIN))
        self.objects[str(id(mobject))] = mobject
        return mobject

    def next_to(self, mobject, target_mobject, direction, buff=0.5):
        mobject.next_to(target_mobject, direction, buff=buff)
        self.objects[str(id(mobject))] = mobject
        return mobject

    def get_all_mobjects(self, except_list=None):
        if except_list is None:
            except_list = []
        return [m for m in self.scene.mobjects if m not in except_list]
`

var layoutClass = regexp.MustCompile(`(?m)^class\s+LayoutManager\b`)

// WithLayoutHelpers appends LayoutHelpers to src unless src defines its own
// LayoutManager. The class goes last so renderer line numbers still match src;
// it is only looked up once construct runs.
func WithLayoutHelpers(src string) string {
	if layoutClass.MatchString(src) {
		return src
	}
	if src != "" && !strings.HasSuffix(src, "\n") {
		src += "\n"
	}
	return src + "\n\n" + LayoutHelpers
}
