// Command mesh-gen produces a demo solar-car canopy mesh: the upper half of
// an ellipsoid, tessellated by marching cubes and saved as binary STL with
// +Y up and the long axis along Z.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/deadsy/sdfx/render"
	"github.com/deadsy/sdfx/sdf"
	v3 "github.com/deadsy/sdfx/vec/v3"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/UBC-Solar/shellpower/pkg/meshio"
)

func main() {
	var (
		out    = flag.String("out", "shell.stl", "Output STL file path")
		width  = flag.Float64("width", 1.8, "Shell width in meters (X)")
		height = flag.Float64("height", 0.35, "Shell height in meters (Y)")
		length = flag.Float64("length", 4.4, "Shell length in meters (Z)")
		cells  = flag.Int("cells", 200, "Marching cubes tessellation resolution")
	)
	flag.Parse()

	solid, err := canopy(*width, *height, *length)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error building solid: %v\n", err)
		os.Exit(1)
	}

	renderer := render.NewMarchingCubesUniform(*cells)
	triangles := render.ToTriangles(solid, renderer)

	soup := make([][3]r3.Vec, len(triangles))
	for i, tri := range triangles {
		for j := 0; j < 3; j++ {
			soup[i][j] = r3.Vec{X: tri[j].X, Y: tri[j].Y, Z: tri[j].Z}
		}
	}

	mesh, err := meshio.FromTriangles(soup)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error building mesh: %v\n", err)
		os.Exit(1)
	}
	if err := meshio.SaveSTL(*out, mesh); err != nil {
		fmt.Fprintf(os.Stderr, "Error saving STL: %v\n", err)
		os.Exit(1)
	}

	min, max := mesh.Bounds()
	fmt.Printf("Wrote %s: %d vertices, %d triangles, %.3f m² surface\n",
		*out, len(mesh.Vertices), len(mesh.Triangles), mesh.SurfaceArea())
	fmt.Printf("  Bounds: (%.2f, %.2f, %.2f) → (%.2f, %.2f, %.2f)\n",
		min.X, min.Y, min.Z, max.X, max.Y, max.Z)
}

// canopy is an ellipsoid clipped to y ≥ 0.
func canopy(width, height, length float64) (sdf.SDF3, error) {
	sphere, err := sdf.Sphere3D(1.0)
	if err != nil {
		return nil, err
	}
	shell := sdf.Transform3D(sphere, sdf.Scale3d(v3.Vec{X: width / 2, Y: height, Z: length / 2}))

	upper, err := sdf.Box3D(v3.Vec{X: width + 1, Y: 2 * height, Z: length + 1}, 0)
	if err != nil {
		return nil, err
	}
	upper = sdf.Transform3D(upper, sdf.Translate3d(v3.Vec{Y: height}))

	return sdf.Intersect3D(shell, upper), nil
}
