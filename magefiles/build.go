//go:build mage

package main

import (
	"fmt"

	"github.com/magefile/mage/mg"
)

type Build mg.Namespace

var shaderSources = map[string]string{
	"assets/shaders/particle.vert": "assets/shaders/particle_vert.spv",
	"assets/shaders/particle.frag": "assets/shaders/particle_frag.spv",
	"assets/shaders/nbody.comp":    "assets/shaders/nbody_comp.spv",
}

// Compiles every GLSL shader to SPIR-V with glslc.
func (Build) Shaders() error {
	return buildShaders()
}

func buildShaders() error {
	for src, dst := range shaderSources {
		fmt.Printf("compiling %s\n", src)
		if _, err := executeCmd("glslc", withArgs(src, "-o", dst), withStream()); err != nil {
			return err
		}
	}
	return nil
}
