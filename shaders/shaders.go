// Package shaders holds the GLSL source of the compute program. The compiled
// comp.spv is read from disk at startup and is not embedded.
package shaders

//go:generate glslc -fshader-stage=compute comp.comp -o comp.spv
