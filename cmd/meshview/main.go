package main

import (
	"flag"
	"log"
	"runtime"

	"github.com/vkngwrapper/meshview/app"
)

func init() {
	// SDL and the surface extension require the main OS thread.
	runtime.LockOSThread()
}

func main() {
	cfg := app.Config{Title: "meshview"}

	flag.IntVar(&cfg.Width, "width", 800, "initial window width")
	flag.IntVar(&cfg.Height, "height", 600, "initial window height")
	flag.BoolVar(&cfg.Validation, "validation", false, "enable the Khronos validation layer if installed")
	flag.BoolVar(&cfg.MSAA, "msaa", true, "render multisampled at the device's best supported count")
	flag.StringVar(&cfg.VertexShaderPath, "vert", "shaders/shader.vert.spv", "compiled vertex shader")
	flag.StringVar(&cfg.FragmentShaderPath, "frag", "shaders/shader.frag.spv", "compiled fragment shader")
	flag.StringVar(&cfg.ModelPath, "model", "assets/viking_room.obj", "OBJ model to view")
	flag.StringVar(&cfg.MaterialPath, "material", "assets/viking_room.mtl", "material library for the model")
	flag.StringVar(&cfg.TexturePath, "texture", "assets/viking_room.png", "PNG texture for the model")
	flag.StringVar(&cfg.PipelineCachePath, "pipeline-cache", "meshview.cache", "pipeline cache file, empty to disable")
	flag.Parse()

	err := app.Run(cfg)
	if err != nil {
		log.Fatalf("%+v\n", err)
	}
}
